package browser

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"parcelworks/internal/config"
)

// RodDriver drives a real Chromium through rod. One page is reused for
// the whole job; portal sessions are stateful (disclaimer cookies,
// search context) and a fresh page would lose that.
type RodDriver struct {
	browser *rod.Browser
	page    *rod.Page

	navTimeout time.Duration
}

// NewRod connects to the browser named by cfg.ControlURL, or launches a
// local headless Chromium when it is empty.
func NewRod(cfg config.BrowserConfig, userAgent string) (*RodDriver, error) {
	controlURL := cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(cfg.Headless).
			Set("disable-gpu").
			Set("disable-dev-shm-usage").
			Set("no-sandbox").
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	var page *rod.Page
	var err error
	if cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}

	if userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent}); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}

	nav := time.Duration(cfg.NavTimeoutSeconds) * time.Second
	if nav <= 0 {
		nav = 45 * time.Second
	}

	return &RodDriver{browser: b, page: page, navTimeout: nav}, nil
}

func (d *RodDriver) Navigate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	page := d.page.Context(ctx).Timeout(d.navTimeout)
	if err := page.Navigate(u.String()); err != nil {
		return fmt.Errorf("navigate %s: %w", u, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", u, err)
	}
	// Stability is best effort; long-polling map widgets never settle.
	_ = page.WaitStable(300 * time.Millisecond)
	return nil
}

func (d *RodDriver) Find(ctx context.Context, wait time.Duration, selectors ...string) (Element, error) {
	deadline := time.Now().Add(wait)
	page := d.page.Context(ctx)
	for {
		for _, sel := range selectors {
			els, err := page.Elements(sel)
			if err != nil {
				continue
			}
			for _, el := range els {
				if vis, err := el.Visible(); err == nil && vis {
					return &rodElement{el: el}, nil
				}
			}
		}
		if time.Now().After(deadline) {
			return nil, ErrElementNotFound
		}
		t := time.NewTimer(250 * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (d *RodDriver) PressEnter(ctx context.Context) error {
	return d.page.Context(ctx).Keyboard.Press(input.Enter)
}

func (d *RodDriver) HTML(ctx context.Context) (string, error) {
	return d.page.Context(ctx).HTML()
}

func (d *RodDriver) Title(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (d *RodDriver) URL(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (d *RodDriver) Screenshot(ctx context.Context) ([]byte, error) {
	return d.page.Context(ctx).Screenshot(true, nil)
}

func (d *RodDriver) Close() error {
	if d.page != nil {
		_ = d.page.Close()
	}
	if d.browser != nil {
		return d.browser.Close()
	}
	return nil
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text() (string, error) {
	return e.el.Text()
}

func (e *rodElement) Attr(name string) (string, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (e *rodElement) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Input(text string) error {
	if err := e.el.SelectAllText(); err != nil {
		return err
	}
	return e.el.Input(text)
}
