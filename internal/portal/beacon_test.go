package portal

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"parcelworks/internal/browser"
	"parcelworks/internal/model"
)

// paneDriver is a scripted browser for driver-level beacon tests. The
// consent splash hides the search input until it is clicked; with
// consentRedirects set, the input only renders after a fresh
// navigation, like the counties that bounce to a landing page after
// the splash.
type paneDriver struct {
	pane             string
	consent          bool
	consentRedirects bool
	navigates        int
}

type paneElement struct{ d *paneDriver }

func (e *paneElement) Text() (string, error)      { return "", nil }
func (e *paneElement) Attr(string) (string, error) { return "", nil }
func (e *paneElement) Input(string) error          { return nil }

func (e *paneElement) Click() error {
	e.d.consent = false
	return nil
}

func (d *paneDriver) Navigate(ctx context.Context, url string) error {
	d.navigates++
	return nil
}

func (d *paneDriver) Find(ctx context.Context, wait time.Duration, selectors ...string) (browser.Element, error) {
	switch {
	case selectorsContain(selectors, "btnAgree"):
		if d.consent {
			return &paneElement{d: d}, nil
		}
		return nil, browser.ErrElementNotFound
	case selectorsContain(selectors, "txtParcelID"):
		if d.consent {
			return nil, browser.ErrElementNotFound
		}
		if d.consentRedirects && d.navigates < 2 {
			return nil, browser.ErrElementNotFound
		}
		return &paneElement{d: d}, nil
	default:
		if d.pane == "" {
			return nil, browser.ErrElementNotFound
		}
		return &paneElement{d: d}, nil
	}
}

func (d *paneDriver) PressEnter(ctx context.Context) error { return nil }

func (d *paneDriver) HTML(ctx context.Context) (string, error) { return d.pane, nil }

func (d *paneDriver) Title(ctx context.Context) (string, error) { return "Beacon", nil }

func (d *paneDriver) URL(ctx context.Context) (string, error) {
	return "https://beacon.schneidercorp.com/Application.aspx?AppID=1", nil
}

func (d *paneDriver) Screenshot(ctx context.Context) ([]byte, error) { return []byte("png"), nil }

func (d *paneDriver) Close() error { return nil }

func selectorsContain(selectors []string, fragment string) bool {
	for _, s := range selectors {
		if strings.Contains(s, fragment) {
			return true
		}
	}
	return false
}

func testBeacon() *beaconStrategy {
	return newBeacon(Options{
		PortalURL: "https://beacon.schneidercorp.com/Application.aspx?AppID=1",
	}.withDefaults())
}

func TestBeaconPrepareRenavigatesAfterConsent(t *testing.T) {
	drv := &paneDriver{consent: true, consentRedirects: true}

	if err := testBeacon().Prepare(context.Background(), drv); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if drv.navigates != 2 {
		t.Fatalf("expected a fresh navigation after consent, got %d", drv.navigates)
	}
}

func TestBeaconPrepareNoConsentNavigatesOnce(t *testing.T) {
	drv := &paneDriver{}

	if err := testBeacon().Prepare(context.Background(), drv); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if drv.navigates != 1 {
		t.Fatalf("expected a single navigation, got %d", drv.navigates)
	}
}

func TestBeaconPrepareMissingSearchInput(t *testing.T) {
	drv := &paneDriver{consentRedirects: true} // input never renders

	err := testBeacon().Prepare(context.Background(), drv)
	var missing *SearchInputMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("expected SearchInputMissingError, got %v", err)
	}
	if missing.Title != "Beacon" || len(missing.Screenshot) == 0 {
		t.Fatalf("expected page diagnostics, got %+v", missing)
	}
}

func TestBeaconLookupPaneWithoutOwnerOrLegalIsNotFound(t *testing.T) {
	// The detail union matched, but only a situs address rendered.
	drv := &paneDriver{pane: `<span id="ctl00_lblPropertyAddress">123 MAIN ST</span>`}

	rec := testBeacon().Lookup(context.Background(), drv, "28-08-22-442-023.000-025")
	if rec.Status != model.LookupNotFound {
		t.Fatalf("expected NOT_FOUND for an empty record, got %q", rec.Status)
	}
	if rec.OwnerName != "" || rec.LegalDescription != "" {
		t.Fatalf("expected empty fields, got owner %q legal %q", rec.OwnerName, rec.LegalDescription)
	}
}

func TestBeaconLookupLegalDescriptionAloneSucceeds(t *testing.T) {
	drv := &paneDriver{pane: `<span id="ctl00_lblLegalDescription">PT NW 22-8-5 2.5 AC</span>`}

	rec := testBeacon().Lookup(context.Background(), drv, "28-08-22-442-023.000-025")
	if rec.Status != model.LookupOK {
		t.Fatalf("expected SUCCESS, got %q (%s)", rec.Status, rec.Note)
	}
	if rec.LegalDescription != "PT NW 22-8-5 2.5 AC" {
		t.Fatalf("expected legal description, got %q", rec.LegalDescription)
	}
}

func TestBeaconTransferFirstDataRow(t *testing.T) {
	doc := mustDoc(t, `
		<table id="ctl00_gvwTransferHistory">
			<tr><th>Date</th><th>Type</th><th>Instrument</th></tr>
			<tr><th>6/14/2018</th><td>WD</td><td>2018/3706</td></tr>
			<tr><th>1/2/2001</th><td>QC</td><td>2001/88</td></tr>
		</table>`)

	tr := beaconTransfer(doc)
	if tr.Date != "6/14/2018" {
		t.Fatalf("expected date 6/14/2018, got %q", tr.Date)
	}
	if tr.DeedCode != "WD" {
		t.Fatalf("expected deed code WD, got %q", tr.DeedCode)
	}
	if tr.Instrument != "2018/3706" {
		t.Fatalf("expected instrument 2018/3706, got %q", tr.Instrument)
	}
}

func TestBeaconTransferDeedCodeRule(t *testing.T) {
	// Column 1 only counts as a deed code when it is 1-3 letters.
	cases := []struct {
		cell string
		want string
	}{
		{"WD", "WD"},
		{"q", "q"},
		{"WARRANTY", ""},
		{"12", ""},
		{"W2", ""},
	}
	for _, tc := range cases {
		doc := mustDoc(t, `
			<table id="TransferHistory">
				<tr><th>Date</th><th>Type</th><th>Instrument</th></tr>
				<tr><td>6/14/2018</td><td>`+tc.cell+`</td><td>2018/3706</td></tr>
			</table>`)
		if got := beaconTransfer(doc).DeedCode; got != tc.want {
			t.Fatalf("cell %q: expected deed code %q, got %q", tc.cell, tc.want, got)
		}
	}
}

func TestBeaconTransferNoDataRows(t *testing.T) {
	doc := mustDoc(t, `
		<table id="TransferHistory">
			<tr><th>Date</th><th>Type</th><th>Instrument</th></tr>
		</table>`)
	tr := beaconTransfer(doc)
	if tr.Date != "" || tr.Instrument != "" || tr.DeedCode != "" {
		t.Fatalf("expected empty transfer, got %+v", tr)
	}
}

func TestBeaconOwnerNameSkipsAddressSpans(t *testing.T) {
	doc := mustDoc(t, `
		<span id="ctl00_lblOwnerAddress">123 MAIN ST</span>
		<span id="ctl00_lblOwner">456 SOME RD</span>
		<span id="ctl01_lblOwnerName">DOE, JOHN &amp; JANE</span>`)

	if got := beaconOwnerName(doc); got != "DOE, JOHN & JANE" {
		t.Fatalf("expected owner name, got %q", got)
	}
}

func TestBeaconOwnerNameEmpty(t *testing.T) {
	doc := mustDoc(t, `<span id="lblOwnerAddress">123 MAIN ST</span>`)
	if got := beaconOwnerName(doc); got != "" {
		t.Fatalf("expected empty owner, got %q", got)
	}
}

func TestBeaconDocumentURLPicksLatestYear(t *testing.T) {
	doc := mustDoc(t, `
		<a id="a_hlkName1" href="/doc.aspx?y=2019">2019 Property Record Card</a>
		<a id="a_hlkName2" href="/doc.aspx?y=2023">2023 Property Record Card</a>
		<a id="a_hlkName3" href="/doc.aspx?y=2021">2021 Property Record Card</a>`)

	got := beaconDocumentURL(doc, "https://beacon.schneidercorp.com/Application.aspx")
	want := "https://beacon.schneidercorp.com/doc.aspx?y=2023"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestBeaconDocumentURLFallsBackToFirstLink(t *testing.T) {
	doc := mustDoc(t, `
		<a id="a_hlkName1" href="/doc.aspx?id=1">Record Card</a>
		<a id="a_hlkName2" href="/doc.aspx?id=2">Another Card</a>`)

	got := beaconDocumentURL(doc, "https://beacon.schneidercorp.com/")
	want := "https://beacon.schneidercorp.com/doc.aspx?id=1"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestBeaconDocumentURLYearFromRow(t *testing.T) {
	// Year lives in a sibling cell, not the link label.
	doc := mustDoc(t, `
		<table>
			<tr><td>2020</td><td><a id="hlkName1" href="/doc.aspx?id=1">Card</a></td></tr>
			<tr><td>2024</td><td><a id="hlkName2" href="/doc.aspx?id=2">Card</a></td></tr>
		</table>`)

	got := beaconDocumentURL(doc, "https://beacon.schneidercorp.com/")
	want := "https://beacon.schneidercorp.com/doc.aspx?id=2"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
