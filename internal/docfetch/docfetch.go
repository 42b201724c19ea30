// Package docfetch downloads property-record documents over plain HTTP.
// Portals serve these as PDFs once a lookup has resolved the document
// URL; no browser is involved.
package docfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"parcelworks/internal/config"
	"parcelworks/internal/pacing"
)

// DefaultUserAgent identifies the service to county portals when the
// config does not override it.
const DefaultUserAgent = "Mozilla/5.0 (compatible; InternalParcelAudit/1.0)"

const requestTimeout = 45 * time.Second

// ErrRobotsDisallowed reports that the host's robots.txt forbids the
// document URL for our user agent.
var ErrRobotsDisallowed = errors.New("robots.txt disallows url")

// Client downloads documents politely: one persistent keep-alive
// connection pool, a document-class delay before every request, and an
// optional robots.txt gate. Safe for use by a single worker; the robots
// cache is guarded for good measure.
type Client struct {
	http      *http.Client
	pacer     *pacing.Pacer
	userAgent string
	respect   bool
	logger    *slog.Logger

	mu     sync.Mutex
	robots map[string]*robotstxt.RobotsData
}

func New(cfg config.ScrapeConfig, pacer *pacing.Pacer, logger *slog.Logger) *Client {
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:      &http.Client{Timeout: requestTimeout},
		pacer:     pacer,
		userAgent: ua,
		respect:   cfg.RespectRobots,
		logger:    logger.With("component", "docfetch"),
		robots:    map[string]*robotstxt.RobotsData{},
	}
}

// Download fetches rawURL into destPath. An existing non-empty target
// is returned as-is without touching the network, so re-running a job
// never re-downloads documents. The file appears at destPath atomically
// via a temp file in the same directory.
func (c *Client) Download(ctx context.Context, rawURL, destPath string) error {
	if fi, err := os.Stat(destPath); err == nil && fi.Size() > 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}

	if c.respect {
		allowed, err := c.allowed(ctx, rawURL)
		if err != nil {
			c.logger.Warn("robots.txt check failed, proceeding", "url", rawURL, "error", err)
		} else if !allowed {
			return fmt.Errorf("%w: %s", ErrRobotsDisallowed, rawURL)
		}
	}

	if err := c.pacer.Document(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch document: unexpected status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("move document into place: %w", err)
	}
	return nil
}

// allowed consults the host's robots.txt. Hosts whose robots.txt cannot
// be fetched are treated as allowing everything.
func (c *Client) allowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, err
	}
	data, err := c.robotsFor(ctx, u)
	if err != nil {
		return false, err
	}
	if data == nil {
		return true, nil
	}
	grp := data.FindGroup(c.userAgent)
	if grp == nil {
		return true, nil
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return grp.Test(path), nil
}

// robotsFor returns the cached robots.txt for a host, fetching it on
// first use. A nil entry marks a host without a usable robots.txt.
func (c *Client) robotsFor(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	c.mu.Lock()
	data, ok := c.robots[u.Host]
	c.mu.Unlock()
	if ok {
		return data, nil
	}

	data, err := c.fetchRobots(ctx, u)
	if err != nil {
		c.logger.Debug("no robots.txt", "host", u.Host, "error", err)
		data = nil
	}
	c.mu.Lock()
	c.robots[u.Host] = data
	c.mu.Unlock()
	return data, nil
}

func (c *Client) fetchRobots(ctx context.Context, base *url.URL) (*robotstxt.RobotsData, error) {
	robotsURL := &url.URL{
		Scheme: base.Scheme,
		Host:   base.Host,
		Path:   "/robots.txt",
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("non-200 robots.txt")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return robotstxt.FromStatusAndBytes(resp.StatusCode, body)
}
