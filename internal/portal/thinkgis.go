package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"parcelworks/internal/browser"
	"parcelworks/internal/model"
	"parcelworks/internal/pacing"
	"parcelworks/internal/parcel"
)

// ThinkGIS locators. Unlike Beacon, the platform renders one search box
// and one floating result panel with stable ids across counties.
const (
	thinkgisSearchSelector = `input#searchBox`
	thinkgisPanelSelector  = `#infoWindow`
	thinkgisBusyMarker     = "Searching..."
	thinkgisCardText       = "Show Property Card"
)

var (
	dsidRe      = regexp.MustCompile(`DSID=(\d+)`)
	featureIDRe = regexp.MustCompile(`FeatureID=(\d+)`)
)

type thinkgisStrategy struct {
	portalURL     string
	baseURL       string
	searchTimeout time.Duration
	logger        *slog.Logger
}

func newThinkGIS(opts Options) *thinkgisStrategy {
	return &thinkgisStrategy{
		portalURL:     opts.PortalURL,
		baseURL:       schemeHost(opts.PortalURL),
		searchTimeout: opts.SearchTimeout,
		logger:        opts.Logger.With("portal", KindThinkGIS),
	}
}

// schemeHost reduces a portal URL to scheme://host. ThinkGIS document
// endpoints are rooted at the host regardless of the map page's path.
func schemeHost(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return strings.TrimRight(strings.TrimSpace(rawURL), "/")
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

func (s *thinkgisStrategy) Kind() Kind { return KindThinkGIS }

func (s *thinkgisStrategy) Prepare(ctx context.Context, drv browser.Driver) error {
	if err := drv.Navigate(ctx, s.portalURL); err != nil {
		return err
	}
	if _, err := drv.Find(ctx, s.searchTimeout, thinkgisSearchSelector); err != nil {
		if errors.Is(err, browser.ErrElementNotFound) {
			return searchInputMissing(ctx, drv)
		}
		return err
	}
	return nil
}

func (s *thinkgisStrategy) Lookup(ctx context.Context, drv browser.Driver, parcelID string) *model.ParcelRecord {
	rec := &model.ParcelRecord{ParcelID: parcelID}

	box, err := drv.Find(ctx, s.searchTimeout, thinkgisSearchSelector)
	if err != nil {
		if errors.Is(err, browser.ErrElementNotFound) {
			return errOutcome(rec, "search box missing")
		}
		return errOutcome(rec, err.Error())
	}
	if err := box.Click(); err != nil {
		return errOutcome(rec, "focus search box: "+err.Error())
	}
	if err := box.Input(strings.TrimSpace(parcelID)); err != nil {
		return errOutcome(rec, "type parcel id: "+err.Error())
	}
	if err := drv.PressEnter(ctx); err != nil {
		return errOutcome(rec, "submit search: "+err.Error())
	}

	panel, err := s.waitForResults(ctx, drv)
	if err != nil {
		return errOutcome(rec, err.Error())
	}
	if panel == "" {
		return errOutcome(rec, "result panel missing")
	}

	// The property-card link is the success signal: the panel renders
	// it only when the search resolved to a parcel.
	href := thinkgisCardHref(panel)
	if href == "" {
		rec.Status = model.LookupNotFound
		rec.Note = "no property card link"
		return rec
	}

	thinkgisApply(thinkgisFields(panel), rec)

	dsid := matchGroup(dsidRe, href)
	featureID := matchGroup(featureIDRe, href)
	if dsid == "" || featureID == "" {
		rec.Status = model.LookupNotFound
		rec.Note = "property card link without DSID/FeatureID"
		return rec
	}
	rec.DocumentURL = fmt.Sprintf("%s/tgis/custom.aspx?DSID=%s&FeatureID=%s&RequestType=PropertyRecordCard",
		s.baseURL, dsid, featureID)

	rec.Status = model.LookupOK
	return rec
}

// waitForResults polls the result panel until the busy marker clears,
// bounded by the search timeout. A timeout is not fatal: whatever the
// panel holds is returned and the link probe decides the outcome.
func (s *thinkgisStrategy) waitForResults(ctx context.Context, drv browser.Driver) (string, error) {
	deadline := time.Now().Add(s.searchTimeout)
	for {
		html, err := drv.HTML(ctx)
		if err != nil {
			return "", fmt.Errorf("read page: %w", err)
		}
		panel := infoPanelHTML(html)
		if panel != "" && !strings.Contains(panel, thinkgisBusyMarker) {
			break
		}
		if time.Now().After(deadline) {
			s.logger.Warn("result panel never settled", "timeout", s.searchTimeout)
			break
		}
		if err := pacing.Sleep(ctx, 500*time.Millisecond); err != nil {
			return "", err
		}
	}

	// One more beat so slow panels finish rendering their rows.
	if err := pacing.Sleep(ctx, 1500*time.Millisecond); err != nil {
		return "", err
	}
	html, err := drv.HTML(ctx)
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}
	return infoPanelHTML(html), nil
}

// infoPanelHTML extracts the result panel's inner HTML from the full
// document, or "" when the panel is not in the DOM.
func infoPanelHTML(pageHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return ""
	}
	sel := doc.Find(thinkgisPanelSelector).First()
	if sel.Length() == 0 {
		return ""
	}
	h, err := sel.Html()
	if err != nil {
		return ""
	}
	return h
}

// thinkgisCardHref finds the "Show Property Card" link inside the
// result panel and returns its href.
func thinkgisCardHref(panelHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(panelHTML))
	if err != nil {
		return ""
	}
	var href string
	doc.Find("a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !strings.Contains(sel.Text(), thinkgisCardText) {
			return true
		}
		h, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(h) == "" {
			return true
		}
		href = strings.TrimSpace(h)
		return false
	})
	return href
}

func matchGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// thinkgisFields flattens the panel's attribute tables into a
// label -> value map. Two markup generations exist in the wild: older
// sites label rows with th.leftheader cells, newer ones with
// td.ftrfld/td.ftrval pairs. Values keep line breaks so multiline
// addresses survive.
func thinkgisFields(panelHTML string) map[string]string {
	fields := map[string]string{}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(panelHTML))
	if err != nil {
		return fields
	}
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if th := row.Find("th.leftheader").First(); th.Length() > 0 {
			td := row.Find("td").First()
			if td.Length() == 0 {
				return
			}
			if label := cleanFieldLabel(th.Text()); label != "" {
				fields[label] = textWithBreaks(td)
			}
			return
		}
		fld := row.Find("td.ftrfld").First()
		if fld.Length() == 0 {
			return
		}
		val := fld.Next()
		if !val.Is("td") {
			return
		}
		if label := cleanFieldLabel(fld.Text()); label != "" {
			fields[label] = textWithBreaks(val)
		}
	})
	return fields
}

// cleanFieldLabel normalizes a label cell; panels pad labels with
// non-breaking spaces.
func cleanFieldLabel(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, " ", " "))
}

// thinkgisApply maps portal field names onto the record. Every
// attribute has an old-generation name and an mv-prefixed
// new-generation name; the new generation also splits addresses into
// street/city/state/zip fields instead of one multiline value.
func thinkgisApply(fields map[string]string, rec *model.ParcelRecord) {
	rec.OwnerName = firstNonEmpty(fields["OwnerName"], fields["mvOwnerName"])
	rec.LegalDescription = firstNonEmpty(fields["LegalDescription"], fields["mvLegalDescription"])
	rec.Transfer.Instrument = firstNonEmpty(fields["Document"], fields["mvTransferDate"])

	if raw := strings.TrimSpace(fields["OwnerAddress"]); raw != "" {
		rec.OwnerAddress = parcel.ParseAddress(raw)
	}
	applyAddressFields(&rec.OwnerAddress, fields, "mvOwner")

	if raw := strings.TrimSpace(fields["LocationAddress"]); raw != "" {
		rec.SitusAddress = parcel.ParseAddress(raw)
	}
	applyAddressFields(&rec.SitusAddress, fields, "mvProp")
}

// applyAddressFields overlays the new-generation per-part address
// fields (mvOwnerStreet, mvPropCity, ...) onto an address.
func applyAddressFields(addr *model.Address, fields map[string]string, prefix string) {
	if v := strings.TrimSpace(fields[prefix+"Street"]); v != "" {
		addr.Street = v
	}
	if v := strings.TrimSpace(fields[prefix+"City"]); v != "" {
		addr.City = v
	}
	if v := strings.TrimSpace(fields[prefix+"State"]); v != "" {
		addr.State = strings.ToUpper(v)
	}
	if v := strings.TrimSpace(fields[prefix+"ZipCode"]); v != "" {
		addr.Zip = v
	}
}
