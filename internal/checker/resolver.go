package checker

import (
	"context"
	"net/http"
	"strings"
	"time"

	"giftcheck/internal/model"

	"github.com/rs/zerolog/log"
)

// URL markers distinguishing the two promotion kinds.
const (
	vipInviteMarker = "vip-invite-cashier"
	giftMarker      = "gift-receive"
)

const resolutionCacheTTL = 24 * time.Hour

// Resolution is a resolved short link and its classification.
type Resolution struct {
	RedirectURL string
	Category    model.LinkCategory
}

// resolve obtains a short link's true destination without downloading the
// destination body: HEAD without following redirects, reading the Location
// header. Servers that answer HEAD with a non-redirect status get a full GET
// that follows redirects, and the final URL is inspected instead.
func (c *Checker) resolve(ctx context.Context, sourceURL string) (*Resolution, *CheckError) {
	if c.cache != nil {
		if redirectURL, category, err := c.cache.GetResolution(ctx, sourceURL); err == nil && redirectURL != "" {
			return &Resolution{RedirectURL: redirectURL, Category: model.LinkCategory(category)}, nil
		}
	}

	headCtx, cancel := context.WithTimeout(ctx, c.vendor.ResolveTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(headCtx, http.MethodHead, sourceURL, nil)
	if err != nil {
		return nil, newCheckError(model.OutcomeInvalid, model.ErrRequest, "malformed link")
	}
	c.setHeaders(req)

	resp, err := c.headCli.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusFound:
		location := resp.Header.Get("Location")
		if location == "" {
			return nil, newCheckError(model.OutcomeInvalid, model.ErrMissingRedirect, "short link carries no redirect target")
		}
		return c.cacheAndClassify(ctx, sourceURL, location), nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, newCheckError(model.OutcomeInvalid, model.ErrNotFound, "link not found")
	case resp.StatusCode >= 500:
		return nil, newCheckError(model.OutcomeAPIException, model.ErrServer, "short-link server error")
	}

	// Non-redirect answer to HEAD. Follow the chain with a GET and inspect
	// where it lands.
	return c.resolveByFollowing(ctx, sourceURL)
}

func (c *Checker) resolveByFollowing(ctx context.Context, sourceURL string) (*Resolution, *CheckError) {
	getCtx, cancel := context.WithTimeout(ctx, c.vendor.APITimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(getCtx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, newCheckError(model.OutcomeInvalid, model.ErrRequest, "malformed link")
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, newCheckError(model.OutcomeInvalid, model.ErrNotFound, "link not found")
	case resp.StatusCode >= 500:
		return nil, newCheckError(model.OutcomeAPIException, model.ErrServer, "short-link server error")
	}

	finalURL := resp.Request.URL.String()
	log.Debug().Str("source_url", sourceURL).Str("final_url", finalURL).Msg("Resolved by following redirects")

	return c.cacheAndClassify(ctx, sourceURL, finalURL), nil
}

func (c *Checker) cacheAndClassify(ctx context.Context, sourceURL, redirectURL string) *Resolution {
	resolution := &Resolution{
		RedirectURL: redirectURL,
		Category:    classifyDestination(redirectURL),
	}

	if c.cache != nil {
		if err := c.cache.SaveResolution(ctx, sourceURL, redirectURL, string(resolution.Category), resolutionCacheTTL); err != nil {
			log.Warn().Err(err).Str("source_url", sourceURL).Msg("Failed to cache resolution")
		}
	}

	return resolution
}

// classifyDestination decides the link category from the destination URL.
func classifyDestination(redirectURL string) model.LinkCategory {
	switch {
	case strings.Contains(redirectURL, vipInviteMarker):
		return model.CategoryVipInvite
	case strings.Contains(redirectURL, giftMarker):
		return model.CategoryGiftCard
	default:
		return model.CategoryUnknown
	}
}
