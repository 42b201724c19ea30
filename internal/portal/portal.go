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
)

// Kind identifies a county GIS portal family.
type Kind string

const (
	KindBeacon   Kind = "beacon"
	KindThinkGIS Kind = "thinkgis"
	KindElevate  Kind = "elevate"
	KindPortico  Kind = "portico"
	KindUnknown  Kind = "unknown"
)

// ErrPortalUnrecognized is returned when no strategy exists for a
// portal. Elevate and Portico hosts are detected and recorded but have
// no lookup strategy yet.
var ErrPortalUnrecognized = errors.New("portal unrecognized")

// SearchInputMissingError reports that a portal rendered without its
// search box. It carries page diagnostics so the failure can name what
// the browser actually landed on.
type SearchInputMissingError struct {
	Title      string
	URL        string
	Screenshot []byte
}

func (e *SearchInputMissingError) Error() string {
	return fmt.Sprintf("search input missing on %q (%s)", e.Title, e.URL)
}

// Detect maps a portal URL to its family by hostname.
func Detect(rawURL string) Kind {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return KindUnknown
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case strings.Contains(host, "beacon.schneidercorp.com"):
		return KindBeacon
	case strings.Contains(host, "wthgis.com"):
		return KindThinkGIS
	case strings.Contains(host, "elevatemaps.io"):
		return KindElevate
	case strings.Contains(host, "mygisonline.com"):
		return KindPortico
	default:
		return KindUnknown
	}
}

// Strategy is one portal family's scraping behavior. Prepare navigates
// to the portal, clears any disclaimer, and confirms the search page is
// usable; Lookup runs one parcel search and always returns a record
// whose Status classifies the outcome.
type Strategy interface {
	Kind() Kind
	Prepare(ctx context.Context, drv browser.Driver) error
	Lookup(ctx context.Context, drv browser.Driver, parcelID string) *model.ParcelRecord
}

// Options configure a strategy instance.
type Options struct {
	PortalURL     string
	SearchTimeout time.Duration
	Logger        *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.SearchTimeout <= 0 {
		o.SearchTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// New builds the strategy for a portal kind.
func New(kind Kind, opts Options) (Strategy, error) {
	opts = opts.withDefaults()
	switch kind {
	case KindBeacon:
		return newBeacon(opts), nil
	case KindThinkGIS:
		return newThinkGIS(opts), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrPortalUnrecognized, kind)
	}
}

// errOutcome stamps a record with a hard-failure outcome.
func errOutcome(rec *model.ParcelRecord, note string) *model.ParcelRecord {
	rec.Status = model.LookupError
	rec.Note = note
	return rec
}

// searchInputMissing collects page diagnostics for the operator. Every
// field is best effort; a wedged browser should not mask the original
// failure.
func searchInputMissing(ctx context.Context, drv browser.Driver) error {
	e := &SearchInputMissingError{}
	e.Title, _ = drv.Title(ctx)
	e.URL, _ = drv.URL(ctx)
	e.Screenshot, _ = drv.Screenshot(ctx)
	return e
}

var brRe = regexp.MustCompile(`(?i)<br\s*/?>`)

// textWithBreaks renders a selection's text with <br> tags preserved as
// newlines. goquery's Text() drops them, which would glue street and
// city lines together.
func textWithBreaks(sel *goquery.Selection) string {
	h, err := sel.Html()
	if err != nil {
		return strings.TrimSpace(sel.Text())
	}
	h = brRe.ReplaceAllString(h, "\n")
	frag, err := goquery.NewDocumentFromReader(strings.NewReader("<div>" + h + "</div>"))
	if err != nil {
		return strings.TrimSpace(sel.Text())
	}
	return strings.TrimSpace(frag.Text())
}

func startsWithDigit(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// resolveHref makes a possibly relative href absolute against the page
// the link was found on.
func resolveHref(pageURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
