package portal

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"parcelworks/internal/browser"
	"parcelworks/internal/model"
	"parcelworks/internal/parcel"
)

// Selector unions for the Beacon (Schneider) portal family. Element ids
// differ county to county (different panel nesting), so every locator
// is a candidate list probed in order.
var (
	beaconConsentSelectors = []string{
		`a[id*="btnAgree"]`,
		`input[id*="btnAgree"]`,
		`button[id*="btnAgree"]`,
		`a[id*="btnContinue"]`,
		`input[value="Agree"]`,
		`input[value="I Agree"]`,
		`button[value="Agree"]`,
	}
	beaconSearchSelectors = []string{
		`input[id*="txtParcelID"]`,
	}
	// Any of these rendering means the detail pane is up.
	beaconDetailSelectors = []string{
		`span[id*="lblLegalDescription"]`,
		`span[id*="lblOwner"]`,
		`span[id*="lblPropertyAddress"]`,
		`span[id*="lblSitusAddress"]`,
		`span[id*="lblLocation"]`,
		`table[id*="TransferHistory"]`,
	}
)

const beaconInterstitial = "Something went wrong"

var (
	deedCodeRe = regexp.MustCompile(`^[A-Za-z]{1,3}$`)
	yearRe     = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
)

type beaconStrategy struct {
	portalURL     string
	searchTimeout time.Duration
	logger        *slog.Logger
}

func newBeacon(opts Options) *beaconStrategy {
	return &beaconStrategy{
		portalURL:     opts.PortalURL,
		searchTimeout: opts.SearchTimeout,
		logger:        opts.Logger.With("portal", KindBeacon),
	}
}

func (s *beaconStrategy) Kind() Kind { return KindBeacon }

func (s *beaconStrategy) Prepare(ctx context.Context, drv browser.Driver) error {
	if err := drv.Navigate(ctx, s.portalURL); err != nil {
		return err
	}
	if s.clearConsent(ctx, drv) {
		// Some counties redirect off the search page after the splash
		// is accepted, so go back before probing for the input.
		if err := drv.Navigate(ctx, s.portalURL); err != nil {
			return err
		}
	}

	if _, err := drv.Find(ctx, s.searchTimeout, beaconSearchSelectors...); err != nil {
		if errors.Is(err, browser.ErrElementNotFound) {
			return searchInputMissing(ctx, drv)
		}
		return err
	}
	return nil
}

// clearConsent clicks through the disclaimer splash when one is shown
// and reports whether it did. Counties without a splash land straight
// on the search page.
func (s *beaconStrategy) clearConsent(ctx context.Context, drv browser.Driver) bool {
	btn, err := drv.Find(ctx, 3*time.Second, beaconConsentSelectors...)
	if err != nil {
		return false
	}
	if err := btn.Click(); err != nil {
		s.logger.Warn("consent click failed", "error", err)
		return false
	}
	s.logger.Debug("cleared disclaimer splash")
	return true
}

func (s *beaconStrategy) Lookup(ctx context.Context, drv browser.Driver, parcelID string) *model.ParcelRecord {
	rec, retry := s.lookupOnce(ctx, drv, parcelID)
	if retry && ctx.Err() == nil {
		s.logger.Info("retrying parcel after portal hiccup", "parcel_id", parcelID)
		if err := s.recover(ctx, drv); err == nil {
			rec, _ = s.lookupOnce(ctx, drv, parcelID)
		}
	}
	return rec
}

// recover re-navigates to the search page after an interstitial or a
// lost session.
func (s *beaconStrategy) recover(ctx context.Context, drv browser.Driver) error {
	if err := drv.Navigate(ctx, s.portalURL); err != nil {
		return err
	}
	if s.clearConsent(ctx, drv) {
		return drv.Navigate(ctx, s.portalURL)
	}
	return nil
}

// lookupOnce runs a single search attempt. The second return reports
// whether a retry after recover() is worth it.
func (s *beaconStrategy) lookupOnce(ctx context.Context, drv browser.Driver, parcelID string) (*model.ParcelRecord, bool) {
	rec := &model.ParcelRecord{ParcelID: parcelID}

	input, err := drv.Find(ctx, s.searchTimeout, beaconSearchSelectors...)
	if err != nil {
		if errors.Is(err, browser.ErrElementNotFound) {
			return errOutcome(rec, "search input missing"), true
		}
		return errOutcome(rec, err.Error()), false
	}
	if err := input.Input(parcelID); err != nil {
		return errOutcome(rec, "type parcel id: "+err.Error()), true
	}
	if err := drv.PressEnter(ctx); err != nil {
		return errOutcome(rec, "submit search: "+err.Error()), true
	}

	if _, err := drv.Find(ctx, s.searchTimeout, beaconDetailSelectors...); err != nil {
		if !errors.Is(err, browser.ErrElementNotFound) {
			return errOutcome(rec, err.Error()), false
		}
		if html, herr := drv.HTML(ctx); herr == nil && strings.Contains(html, beaconInterstitial) {
			return errOutcome(rec, "portal interstitial"), true
		}
		rec.Status = model.LookupNotFound
		rec.Note = "no matching parcel"
		return rec, false
	}

	html, err := drv.HTML(ctx)
	if err != nil {
		return errOutcome(rec, "read page: "+err.Error()), false
	}
	if strings.Contains(html, beaconInterstitial) {
		return errOutcome(rec, "portal interstitial"), true
	}

	pageURL, _ := drv.URL(ctx)
	if err := s.extract(html, pageURL, rec); err != nil {
		return errOutcome(rec, "extract: "+err.Error()), false
	}
	// A pane with neither an owner nor a legal description is a result
	// shell, not a match; the situs and transfer selectors alone do not
	// make a record.
	if rec.OwnerName == "" && rec.LegalDescription == "" {
		rec.Status = model.LookupNotFound
		rec.Note = "detail pane has no owner or legal description"
		return rec, false
	}
	rec.Status = model.LookupOK
	return rec, false
}

// extract pulls the record fields out of the rendered detail pane.
func (s *beaconStrategy) extract(html, pageURL string, rec *model.ParcelRecord) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}

	rec.OwnerName = beaconOwnerName(doc)
	rec.LegalDescription = strings.TrimSpace(doc.Find(`span[id*="lblLegalDescription"]`).First().Text())
	rec.AlternateID = strings.TrimSpace(doc.Find(`span[id*="lblAlternateID"], span[id*="lblAltID"]`).First().Text())

	if raw := textWithBreaks(doc.Find(`span[id*="lblOwnerAddress"]`).First()); raw != "" {
		rec.OwnerAddress = parcel.ParseAddress(raw)
	}
	situs := firstNonEmpty(
		textWithBreaks(doc.Find(`span[id*="lblPropertyAddress"]`).First()),
		textWithBreaks(doc.Find(`span[id*="lblSitusAddress"]`).First()),
		textWithBreaks(doc.Find(`span[id*="lblLocation"]`).First()),
	)
	if situs != "" {
		rec.SitusAddress = parcel.ParseAddress(situs)
	}

	rec.Transfer = beaconTransfer(doc)
	rec.DocumentURL = beaconDocumentURL(doc, pageURL)
	return nil
}

// beaconOwnerName probes the owner selector union, skipping address
// spans that share the id prefix and anything that reads like an
// address line.
func beaconOwnerName(doc *goquery.Document) string {
	var owner string
	doc.Find(`span[id*="lblOwner"], span[id*="lblOwnerName"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if id, _ := sel.Attr("id"); strings.Contains(id, "Address") {
			return true
		}
		text := strings.TrimSpace(sel.Text())
		if text == "" || startsWithDigit(text) {
			return true
		}
		owner = text
		return false
	})
	return owner
}

// beaconTransfer reads the first data row of the transfer-history grid:
// date in column 0 (rendered as th or td depending on county), deed
// code in column 1 when it looks like a code, instrument in column 2.
func beaconTransfer(doc *goquery.Document) model.Transfer {
	var tr model.Transfer

	table := doc.Find(`table[id*="gvwTransferHistory"], table[id*="TransferHistory"]`).First()
	rows := table.Find("tr")
	if rows.Length() < 2 {
		return tr
	}

	cells := rows.Eq(1).Find("th, td")
	tr.Date = strings.TrimSpace(cells.Eq(0).Text())
	tr.Instrument = strings.TrimSpace(cells.Eq(2).Text())
	if code := strings.TrimSpace(cells.Eq(1).Text()); deedCodeRe.MatchString(code) {
		tr.DeedCode = code
	}
	return tr
}

// beaconDocumentURL picks the property-record-card link. When several
// links carry years (one card per assessment year) the most recent
// wins; otherwise the first link does.
func beaconDocumentURL(doc *goquery.Document, pageURL string) string {
	bestHref, bestYear, firstHref := "", 0, ""

	doc.Find(`a[id*="hlkName"]`).Each(func(i int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		if firstHref == "" {
			firstHref = href
		}

		label := sel.Text()
		if !yearRe.MatchString(label) {
			label = sel.Closest("tr").Text()
		}
		if m := yearRe.FindString(label); m != "" {
			if y, err := strconv.Atoi(m); err == nil && y > bestYear {
				bestYear, bestHref = y, href
			}
		}
	})

	href := bestHref
	if href == "" {
		href = firstHref
	}
	return resolveHref(pageURL, href)
}
