package portal

import (
	"testing"

	"parcelworks/internal/model"
)

// Older ThinkGIS sites: th.leftheader label cells and combined
// multiline addresses.
const thinkgisPanelGen1 = `
<div class="ftrTitle">Parcel 28-08-22-442-023.000-025</div>
<table>
	<tr><th class="leftheader">OwnerName</th><td>DOE, JOHN &amp; JANE</td></tr>
	<tr><th class="leftheader">OwnerAddress</th><td>123 MAIN ST<br>BLOOMFIELD, IN 47424-0000</td></tr>
	<tr><th class="leftheader">LocationAddress</th><td>456 ELM DR<br>SPRINGVILLE, IN 47462</td></tr>
	<tr><th class="leftheader">LegalDescription</th><td>PT NW 22-8-5 2.5 AC</td></tr>
	<tr><th class="leftheader">Document</th><td>2018/3706</td></tr>
</table>
<a href="custom.aspx?DSID=12&amp;FeatureID=3456&amp;RequestType=PropertyRecordCard">Show Property Card</a>`

// Newer ThinkGIS sites: td.ftrfld/td.ftrval pairs with mv-prefixed
// names and per-part address fields.
const thinkgisPanelGen2 = `
<table>
	<tr><td class="ftrfld">mvOwnerName</td><td class="ftrval">ACME HOLDINGS LLC</td></tr>
	<tr><td class="ftrfld">mvOwnerStreet</td><td class="ftrval">PO BOX 9</td></tr>
	<tr><td class="ftrfld">mvOwnerCity</td><td class="ftrval">BLOOMFIELD</td></tr>
	<tr><td class="ftrfld">mvOwnerState</td><td class="ftrval">in</td></tr>
	<tr><td class="ftrfld">mvOwnerZipCode</td><td class="ftrval">47424</td></tr>
	<tr><td class="ftrfld">mvPropStreet</td><td class="ftrval">456 ELM DR</td></tr>
	<tr><td class="ftrfld">mvPropCity</td><td class="ftrval">SPRINGVILLE</td></tr>
	<tr><td class="ftrfld">mvPropState</td><td class="ftrval">IN</td></tr>
	<tr><td class="ftrfld">mvPropZipCode</td><td class="ftrval">47462</td></tr>
	<tr><td class="ftrfld">mvLegalDescription</td><td class="ftrval">LOT 4 ORIGINAL PLAT</td></tr>
	<tr><td class="ftrfld">mvTransferDate</td><td class="ftrval">2021-07-01</td></tr>
</table>
<a href="/tgis/custom.aspx?DSID=7&amp;FeatureID=991&amp;RequestType=PropertyRecordCard">Show Property Card</a>`

func TestThinkgisFieldsGen1(t *testing.T) {
	fields := thinkgisFields(thinkgisPanelGen1)

	if got := fields["OwnerName"]; got != "DOE, JOHN & JANE" {
		t.Fatalf("expected owner name, got %q", got)
	}
	if got := fields["OwnerAddress"]; got != "123 MAIN ST\nBLOOMFIELD, IN 47424-0000" {
		t.Fatalf("expected multiline owner address, got %q", got)
	}
	if got := fields["Document"]; got != "2018/3706" {
		t.Fatalf("expected document, got %q", got)
	}
}

func TestThinkgisFieldsGen2(t *testing.T) {
	fields := thinkgisFields(thinkgisPanelGen2)

	if got := fields["mvOwnerName"]; got != "ACME HOLDINGS LLC" {
		t.Fatalf("expected owner name, got %q", got)
	}
	if got := fields["mvPropZipCode"]; got != "47462" {
		t.Fatalf("expected situs zip, got %q", got)
	}
	if got := fields["mvTransferDate"]; got != "2021-07-01" {
		t.Fatalf("expected transfer date, got %q", got)
	}
}

func TestThinkgisApplyGen1(t *testing.T) {
	rec := &model.ParcelRecord{ParcelID: "28-08-22-442-023.000-025"}
	thinkgisApply(thinkgisFields(thinkgisPanelGen1), rec)

	if rec.OwnerName != "DOE, JOHN & JANE" {
		t.Fatalf("expected owner name, got %q", rec.OwnerName)
	}
	if rec.LegalDescription != "PT NW 22-8-5 2.5 AC" {
		t.Fatalf("expected legal description, got %q", rec.LegalDescription)
	}
	if rec.Transfer.Instrument != "2018/3706" {
		t.Fatalf("expected instrument, got %q", rec.Transfer.Instrument)
	}

	want := model.Address{Street: "123 MAIN ST", City: "BLOOMFIELD", State: "IN", Zip: "47424-0000"}
	if rec.OwnerAddress != want {
		t.Fatalf("expected owner address %+v, got %+v", want, rec.OwnerAddress)
	}
	want = model.Address{Street: "456 ELM DR", City: "SPRINGVILLE", State: "IN", Zip: "47462"}
	if rec.SitusAddress != want {
		t.Fatalf("expected situs address %+v, got %+v", want, rec.SitusAddress)
	}
}

func TestThinkgisApplyGen2(t *testing.T) {
	rec := &model.ParcelRecord{ParcelID: "28-08-22-442-023.000-025"}
	thinkgisApply(thinkgisFields(thinkgisPanelGen2), rec)

	if rec.OwnerName != "ACME HOLDINGS LLC" {
		t.Fatalf("expected owner name, got %q", rec.OwnerName)
	}
	want := model.Address{Street: "PO BOX 9", City: "BLOOMFIELD", State: "IN", Zip: "47424"}
	if rec.OwnerAddress != want {
		t.Fatalf("expected owner address %+v, got %+v", want, rec.OwnerAddress)
	}
	want = model.Address{Street: "456 ELM DR", City: "SPRINGVILLE", State: "IN", Zip: "47462"}
	if rec.SitusAddress != want {
		t.Fatalf("expected situs address %+v, got %+v", want, rec.SitusAddress)
	}
	if rec.Transfer.Instrument != "2021-07-01" {
		t.Fatalf("expected instrument from transfer date, got %q", rec.Transfer.Instrument)
	}
}

func TestThinkgisCardHref(t *testing.T) {
	href := thinkgisCardHref(thinkgisPanelGen1)
	if href != "custom.aspx?DSID=12&FeatureID=3456&RequestType=PropertyRecordCard" {
		t.Fatalf("unexpected href %q", href)
	}

	if got := thinkgisCardHref(`<a href="/x">Zoom To</a>`); got != "" {
		t.Fatalf("expected no card href, got %q", got)
	}
}

func TestThinkgisDocumentIDExtraction(t *testing.T) {
	href := "custom.aspx?DSID=12&FeatureID=3456&RequestType=PropertyRecordCard"
	if got := matchGroup(dsidRe, href); got != "12" {
		t.Fatalf("expected DSID 12, got %q", got)
	}
	if got := matchGroup(featureIDRe, href); got != "3456" {
		t.Fatalf("expected FeatureID 3456, got %q", got)
	}
	if got := matchGroup(dsidRe, "custom.aspx?RequestType=PropertyRecordCard"); got != "" {
		t.Fatalf("expected empty DSID, got %q", got)
	}
}

func TestSchemeHost(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://greenecounty.wthgis.com", "https://greenecounty.wthgis.com"},
		{"https://greenecounty.wthgis.com/tgis/map.aspx", "https://greenecounty.wthgis.com"},
		{"http://sullivan.wthgis.com/", "http://sullivan.wthgis.com"},
	}
	for _, tc := range cases {
		if got := schemeHost(tc.in); got != tc.want {
			t.Fatalf("schemeHost(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestInfoPanelHTML(t *testing.T) {
	page := `<html><body><div id="infoWindow"><b>hello</b></div></body></html>`
	if got := infoPanelHTML(page); got != "<b>hello</b>" {
		t.Fatalf("expected panel html, got %q", got)
	}
	if got := infoPanelHTML("<html><body></body></html>"); got != "" {
		t.Fatalf("expected empty panel, got %q", got)
	}
}
