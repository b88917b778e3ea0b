// Package checker implements the outbound analysis pipeline: it resolves a
// vendor short link, classifies the destination, and queries or scrapes the
// vendor endpoints to determine whether the promotion is still redeemable.
package checker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"giftcheck/internal/config"
	"giftcheck/internal/model"

	"github.com/rs/zerolog/log"
)

// nowFn is swapped in tests that pin the clock.
var nowFn = time.Now

// beijingTZ renders expiry displays in the vendor's market time zone.
var beijingTZ = time.FixedZone("CST", 8*60*60)

// ResolutionCache caches resolved redirect targets keyed by source URL.
// Implemented by repository.RedisRepository; nil disables caching.
type ResolutionCache interface {
	GetResolution(ctx context.Context, sourceURL string) (redirectURL, category string, err error)
	SaveResolution(ctx context.Context, sourceURL, redirectURL, category string, ttl time.Duration) error
}

// Checker analyzes promotional links. It owns its HTTP clients; nothing in
// this package touches process-wide state.
type Checker struct {
	vendor  *config.VendorConfig
	cfg     *config.CheckerConfig
	client  *http.Client // follows redirects
	headCli *http.Client // stops at the first redirect
	cache   ResolutionCache

	// analyze is the per-link unit of work the batch pool executes.
	analyze func(ctx context.Context, sourceURL string) *model.AnalysisResult
}

// Option configures a Checker.
type Option func(*Checker)

// WithHTTPClient replaces the transport used for all vendor calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) {
		c.client = client
	}
}

// WithResolutionCache enables cache-aside reads for short-link resolution.
func WithResolutionCache(cache ResolutionCache) Option {
	return func(c *Checker) {
		c.cache = cache
	}
}

// New creates a Checker from the vendor and checker configuration sections.
func New(vendor *config.VendorConfig, cfg *config.CheckerConfig, opts ...Option) *Checker {
	c := &Checker{
		vendor: vendor,
		cfg:    cfg,
		client: &http.Client{},
	}

	for _, opt := range opts {
		opt(c)
	}

	// Same transport, but stop at the first redirect so resolution can read
	// the Location header without fetching the destination.
	c.headCli = &http.Client{
		Transport: c.client.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	c.analyze = c.AnalyzeOne

	return c
}

// AnalyzeOne analyzes a single link end to end: resolve, dispatch to the
// gift-card or VIP checker, normalize the outcome. It is the outermost
// safety boundary; it never returns an error and never panics past itself.
func (c *Checker) AnalyzeOne(ctx context.Context, sourceURL string) (result *model.AnalysisResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("source_url", sourceURL).Interface("panic", r).Msg("Check panicked")
			result = &model.AnalysisResult{
				SourceURL:     sourceURL,
				Outcome:       model.OutcomeSystemException,
				Category:      model.CategoryUnknown,
				ErrorCategory: model.ErrUnknown,
				Message:       fmt.Sprintf("internal error: %v", r),
				CheckedAt:     nowFn(),
			}
		}
	}()

	resolution, cerr := c.resolve(ctx, sourceURL)
	if cerr != nil {
		return failureResult(sourceURL, "", model.CategoryUnknown, cerr)
	}

	log.Debug().
		Str("source_url", sourceURL).
		Str("redirect_url", resolution.RedirectURL).
		Str("category", string(resolution.Category)).
		Msg("Link resolved")

	switch resolution.Category {
	case model.CategoryGiftCard:
		return c.checkGift(ctx, sourceURL, resolution.RedirectURL)
	case model.CategoryVipInvite:
		return c.checkVip(ctx, sourceURL, resolution.RedirectURL)
	default:
		return &model.AnalysisResult{
			SourceURL:     sourceURL,
			Outcome:       model.OutcomeInvalid,
			RedirectURL:   resolution.RedirectURL,
			Category:      model.CategoryUnknown,
			ErrorCategory: model.ErrUnrecognizedLink,
			Message:       "not a gift-card or VIP invitation link",
			CheckedAt:     nowFn(),
		}
	}
}

// setHeaders applies the browser headers the vendor endpoints expect.
func (c *Checker) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.vendor.UserAgent)
	req.Header.Set("Referer", c.vendor.Referer)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
}
