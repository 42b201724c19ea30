package pacing

import (
	"context"
	"math/rand/v2"
	"time"

	"parcelworks/internal/config"
)

// Default delay bounds. County portals are small government sites; the
// worker paces itself like a careful human operator rather than a
// crawler.
const (
	defaultPageMin = 2500 * time.Millisecond
	defaultPageMax = 6 * time.Second
	defaultDocMin  = 6 * time.Second
	defaultDocMax  = 12 * time.Second

	defaultThinkEvery = 15
	defaultThinkMin   = 10 * time.Second
	defaultThinkMax   = 15 * time.Second
)

// Pacer hands out randomized politeness delays. One Pacer is shared by
// the whole worker; it is safe for concurrent use.
type Pacer struct {
	pageMin, pageMax time.Duration
	docMin, docMax   time.Duration
	thinkEvery       int
	thinkMin         time.Duration
	thinkMax         time.Duration
}

// New builds a Pacer from config, falling back to the defaults for any
// bound left at zero.
func New(cfg config.PacingConfig) *Pacer {
	p := &Pacer{
		pageMin:    time.Duration(cfg.PageMinMs) * time.Millisecond,
		pageMax:    time.Duration(cfg.PageMaxMs) * time.Millisecond,
		docMin:     time.Duration(cfg.DocumentMinMs) * time.Millisecond,
		docMax:     time.Duration(cfg.DocumentMaxMs) * time.Millisecond,
		thinkEvery: cfg.ThinkEvery,
		thinkMin:   time.Duration(cfg.ThinkMinMs) * time.Millisecond,
		thinkMax:   time.Duration(cfg.ThinkMaxMs) * time.Millisecond,
	}
	if p.pageMin <= 0 {
		p.pageMin = defaultPageMin
	}
	if p.pageMax <= 0 {
		p.pageMax = defaultPageMax
	}
	if p.docMin <= 0 {
		p.docMin = defaultDocMin
	}
	if p.docMax <= 0 {
		p.docMax = defaultDocMax
	}
	if p.thinkEvery <= 0 {
		p.thinkEvery = defaultThinkEvery
	}
	if p.thinkMin <= 0 {
		p.thinkMin = defaultThinkMin
	}
	if p.thinkMax <= 0 {
		p.thinkMax = defaultThinkMax
	}
	return p
}

// PageDelay picks a delay for portal page interactions.
func (p *Pacer) PageDelay() time.Duration {
	return between(p.pageMin, p.pageMax)
}

// DocumentDelay picks a delay for record-card downloads, which hit the
// county servers harder than a page click.
func (p *Pacer) DocumentDelay() time.Duration {
	return between(p.docMin, p.docMax)
}

// Page sleeps a page-class delay, honoring cancellation.
func (p *Pacer) Page(ctx context.Context) error {
	return Sleep(ctx, p.PageDelay())
}

// Document sleeps a document-class delay, honoring cancellation.
func (p *Pacer) Document(ctx context.Context) error {
	return Sleep(ctx, p.DocumentDelay())
}

// ShouldThink reports whether the long pause is due after finishing
// parcel number n (1-based).
func (p *Pacer) ShouldThink(n int) bool {
	return n > 0 && n%p.thinkEvery == 0
}

// Think sleeps the long pause if one is due after parcel n, otherwise
// returns immediately.
func (p *Pacer) Think(ctx context.Context, n int) error {
	if !p.ShouldThink(n) {
		return nil
	}
	return Sleep(ctx, between(p.thinkMin, p.thinkMax))
}

// Sleep blocks for d or until the context is done, whichever comes
// first, returning the context error in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// between returns a uniform duration in [min, max].
func between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}
