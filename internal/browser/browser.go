package browser

import (
	"context"
	"errors"
	"time"
)

// ErrElementNotFound is returned by Find when no selector in the union
// matched a visible element before the wait expired.
var ErrElementNotFound = errors.New("element not found")

// Element is a handle to a DOM element located by Find.
type Element interface {
	// Text returns the element's rendered text.
	Text() (string, error)
	// Attr returns the named attribute, or "" when absent.
	Attr(name string) (string, error)
	// Click left-clicks the element once.
	Click() error
	// Input replaces the element's current content with text.
	Input(text string) error
}

// Driver is the browser surface the portal strategies drive. County GIS
// sites vary wildly in markup, so lookups work with selector unions and
// fall back to parsing the rendered HTML.
type Driver interface {
	// Navigate loads a URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error
	// Find polls for up to wait until one of the selectors matches a
	// visible element, trying them in order on each pass. Returns
	// ErrElementNotFound when the wait expires.
	Find(ctx context.Context, wait time.Duration, selectors ...string) (Element, error)
	// PressEnter sends the Enter key to the focused element.
	PressEnter(ctx context.Context) error
	// HTML returns the current rendered document.
	HTML(ctx context.Context) (string, error)
	// Title returns the current page title.
	Title(ctx context.Context) (string, error)
	// URL returns the current page URL after any redirects.
	URL(ctx context.Context) (string, error)
	// Screenshot captures a full-page PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// Close shuts the page and browser down.
	Close() error
}
