package checker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giftcheck/internal/model"
)

type savedResolution struct {
	sourceURL   string
	redirectURL string
	category    string
	ttl         time.Duration
}

type fakeResolutionCache struct {
	mu          sync.Mutex
	redirectURL string
	category    string
	saves       []savedResolution
}

func (f *fakeResolutionCache) GetResolution(ctx context.Context, sourceURL string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.redirectURL == "" {
		return "", "", errors.New("cache miss")
	}
	return f.redirectURL, f.category, nil
}

func (f *fakeResolutionCache) SaveResolution(ctx context.Context, sourceURL, redirectURL, category string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, savedResolution{sourceURL, redirectURL, category, ttl})
	return nil
}

func TestResolve_RedirectClassification(t *testing.T) {
	tests := []struct {
		name     string
		location string
		status   int
		want     model.LinkCategory
	}{
		{
			name:     "gift card via 301",
			location: "https://y.music.163.com/g/gift-receive?d=ABC&p=123",
			status:   http.StatusMovedPermanently,
			want:     model.CategoryGiftCard,
		},
		{
			name:     "vip invite via 302",
			location: "https://y.music.163.com/g/vip-invite-cashier/act1?token=tok",
			status:   http.StatusFound,
			want:     model.CategoryVipInvite,
		},
		{
			name:     "unrelated destination",
			location: "https://music.163.com/playlist?id=1",
			status:   http.StatusFound,
			want:     model.CategoryUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodHead, r.Method)
				assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
				w.Header().Set("Location", tt.location)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := newTestChecker()
			resolution, cerr := c.resolve(context.Background(), srv.URL+"/s")

			require.Nil(t, cerr)
			assert.Equal(t, tt.location, resolution.RedirectURL)
			assert.Equal(t, tt.want, resolution.Category)
		})
	}
}

func TestResolve_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantOutcome  model.OutcomeKind
		wantCategory model.ErrorCategory
	}{
		{"not found", http.StatusNotFound, model.OutcomeInvalid, model.ErrNotFound},
		{"server error", http.StatusInternalServerError, model.OutcomeAPIException, model.ErrServer},
		{"bad gateway", http.StatusBadGateway, model.OutcomeAPIException, model.ErrServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := newTestChecker()
			resolution, cerr := c.resolve(context.Background(), srv.URL+"/s")

			assert.Nil(t, resolution)
			require.NotNil(t, cerr)
			assert.Equal(t, tt.wantOutcome, cerr.Outcome)
			assert.Equal(t, tt.wantCategory, cerr.Category)
		})
	}
}

func TestResolve_RedirectWithoutLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	c := newTestChecker()
	resolution, cerr := c.resolve(context.Background(), srv.URL+"/s")

	assert.Nil(t, resolution)
	require.NotNil(t, cerr)
	assert.Equal(t, model.OutcomeInvalid, cerr.Outcome)
	assert.Equal(t, model.ErrMissingRedirect, cerr.Category)
}

func TestResolve_FallsBackToFollowing(t *testing.T) {
	// Answers HEAD with 200, redirects GET to the invitation page.
	mux := http.NewServeMux()
	mux.HandleFunc("/s", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, "/g/vip-invite-cashier/act7?token=tok", http.StatusFound)
	})
	mux.HandleFunc("/g/vip-invite-cashier/act7", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestChecker()
	resolution, cerr := c.resolve(context.Background(), srv.URL+"/s")

	require.Nil(t, cerr)
	assert.Equal(t, model.CategoryVipInvite, resolution.Category)
	assert.Contains(t, resolution.RedirectURL, "/g/vip-invite-cashier/act7")
}

func TestResolve_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := newTestChecker()
	resolution, cerr := c.resolve(context.Background(), srv.URL+"/s")

	assert.Nil(t, resolution)
	require.NotNil(t, cerr)
	assert.Equal(t, model.OutcomeAPIException, cerr.Outcome)
	assert.Equal(t, model.ErrConnection, cerr.Category)
}

func TestResolve_CacheHitSkipsNetwork(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	cache := &fakeResolutionCache{
		redirectURL: "https://y.music.163.com/g/gift-receive?d=XYZ",
		category:    "gift_card",
	}
	c := newTestChecker(WithResolutionCache(cache))

	resolution, cerr := c.resolve(context.Background(), srv.URL+"/s")

	require.Nil(t, cerr)
	assert.Equal(t, "https://y.music.163.com/g/gift-receive?d=XYZ", resolution.RedirectURL)
	assert.Equal(t, model.CategoryGiftCard, resolution.Category)
	assert.Equal(t, int64(0), hits.Load())
}

func TestResolve_SavesToCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://y.music.163.com/g/gift-receive?d=ABC")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	cache := &fakeResolutionCache{}
	c := newTestChecker(WithResolutionCache(cache))

	sourceURL := srv.URL + "/s"
	_, cerr := c.resolve(context.Background(), sourceURL)

	require.Nil(t, cerr)
	require.Len(t, cache.saves, 1)
	assert.Equal(t, sourceURL, cache.saves[0].sourceURL)
	assert.Equal(t, "https://y.music.163.com/g/gift-receive?d=ABC", cache.saves[0].redirectURL)
	assert.Equal(t, "gift_card", cache.saves[0].category)
	assert.Equal(t, 24*time.Hour, cache.saves[0].ttl)
}

func TestClassifyDestination(t *testing.T) {
	assert.Equal(t, model.CategoryVipInvite, classifyDestination("https://x/g/vip-invite-cashier/a"))
	assert.Equal(t, model.CategoryGiftCard, classifyDestination("https://x/g/gift-receive?d=1"))
	assert.Equal(t, model.CategoryUnknown, classifyDestination("https://x/other"))
}
