package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giftcheck/internal/config"
	"giftcheck/internal/model"
	"giftcheck/internal/mq"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeChecker struct {
	mu        sync.Mutex
	oneCalls  []string
	lastConc  int
	batchURLs []string
}

func (f *fakeChecker) AnalyzeOne(ctx context.Context, sourceURL string) *model.AnalysisResult {
	f.mu.Lock()
	f.oneCalls = append(f.oneCalls, sourceURL)
	f.mu.Unlock()
	return &model.AnalysisResult{
		SourceURL: sourceURL,
		Outcome:   model.OutcomeSuccess,
		Category:  model.CategoryGiftCard,
		Gift:      &model.GiftResult{Status: model.GiftAvailable, TotalCount: 1, AvailableCount: 1},
		CheckedAt: time.Now(),
	}
}

func (f *fakeChecker) AnalyzeBatch(ctx context.Context, urls []string, concurrency int, onResult func(*model.AnalysisResult)) []*model.AnalysisResult {
	f.mu.Lock()
	f.batchURLs = urls
	f.lastConc = concurrency
	f.mu.Unlock()

	results := make([]*model.AnalysisResult, 0, len(urls))
	for _, u := range urls {
		r := &model.AnalysisResult{
			SourceURL: u,
			Outcome:   model.OutcomeSuccess,
			Category:  model.CategoryVipInvite,
			Vip:       &model.VipResult{Status: model.VipValid, Method: model.MethodAPI},
			CheckedAt: time.Now(),
		}
		if onResult != nil {
			onResult(r)
		}
		results = append(results, r)
	}
	return results
}

type fakeMySQLRepo struct {
	mu   sync.Mutex
	logs []*model.CheckLog
}

func (f *fakeMySQLRepo) SaveCheckLog(ctx context.Context, cl *model.CheckLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, cl)
	return nil
}

func (f *fakeMySQLRepo) GetCheckLogs(ctx context.Context, batchID string, limit int) ([]model.CheckLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CheckLog
	for _, cl := range f.logs {
		if cl.BatchID == batchID {
			out = append(out, *cl)
		}
	}
	return out, nil
}

func (f *fakeMySQLRepo) GetRecentCheckLogs(ctx context.Context, limit int) ([]model.CheckLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.CheckLog, 0, len(f.logs))
	for _, cl := range f.logs {
		out = append(out, *cl)
	}
	return out, nil
}

func (f *fakeMySQLRepo) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	return nil, nil
}

func (f *fakeMySQLRepo) CleanupOldCheckLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeMySQLRepo) Close() error { return nil }

func (f *fakeMySQLRepo) saved() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logs)
}

type fakeRedisRepo struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeRedisRepo() *fakeRedisRepo {
	return &fakeRedisRepo{counts: make(map[string]int64)}
}

func (f *fakeRedisRepo) GetResolution(ctx context.Context, sourceURL string) (string, string, error) {
	return "", "", nil
}

func (f *fakeRedisRepo) SaveResolution(ctx context.Context, sourceURL, redirectURL, category string, ttl time.Duration) error {
	return nil
}

func (f *fakeRedisRepo) IncrBatchStatus(ctx context.Context, batchID, status string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[batchID+":"+status]++
	return f.counts[batchID+":"+status], nil
}

func (f *fakeRedisRepo) GetBatchStatusCounts(ctx context.Context, batchID string) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64)
	prefix := batchID + ":"
	for k, v := range f.counts {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out[k[len(prefix):]] = v
		}
	}
	return out, nil
}

func (f *fakeRedisRepo) Close() error { return nil }

func (f *fakeRedisRepo) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.counts {
		n += int(v)
	}
	return n
}

type fakeProducer struct {
	mu   sync.Mutex
	sent []*mq.CheckResultMessage
}

func (f *fakeProducer) SendCheckResult(ctx context.Context, msg *mq.CheckResultMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func (f *fakeProducer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func testCheckerConfig() *config.CheckerConfig {
	return &config.CheckerConfig{
		DefaultConcurrency: 5,
		MaxConcurrency:     20,
		MaxBatchSize:       50,
	}
}

func setupAnalyzeRouter(h *AnalyzeHandler) *gin.Engine {
	router := gin.New()
	router.POST("/api/v1/analyze", h.Analyze)
	router.POST("/api/v1/analyze/batch", h.AnalyzeBatch)
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAnalyzeHandler_Analyze(t *testing.T) {
	t.Run("successful analysis", func(t *testing.T) {
		checker := &fakeChecker{}
		mysqlRepo := &fakeMySQLRepo{}
		h := NewAnalyzeHandler(checker, testCheckerConfig(), mysqlRepo, nil, nil)
		router := setupAnalyzeRouter(h)

		w := postJSON(t, router, "/api/v1/analyze", AnalyzeRequest{Link: "  http://163cn.tv/abc  "})

		assert.Equal(t, http.StatusOK, w.Code)

		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.Code)

		assert.Equal(t, []string{"http://163cn.tv/abc"}, checker.oneCalls)

		// Persistence runs off the request path.
		require.Eventually(t, func() bool { return mysqlRepo.saved() == 1 }, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("typed-nil producer falls back to direct persistence", func(t *testing.T) {
		checker := &fakeChecker{}
		mysqlRepo := &fakeMySQLRepo{}
		var producer *mq.Producer // mirrors main.go when rocketmq is not configured
		h := NewAnalyzeHandler(checker, testCheckerConfig(), mysqlRepo, nil, producer)
		router := setupAnalyzeRouter(h)

		w := postJSON(t, router, "/api/v1/analyze", AnalyzeRequest{Link: "http://163cn.tv/abc"})

		assert.Equal(t, http.StatusOK, w.Code)
		require.Eventually(t, func() bool { return mysqlRepo.saved() == 1 }, 2*time.Second, 10*time.Millisecond,
			"check log should be persisted when MQ is not configured")
	})

	t.Run("missing link", func(t *testing.T) {
		h := NewAnalyzeHandler(&fakeChecker{}, testCheckerConfig(), nil, nil, nil)
		router := setupAnalyzeRouter(h)

		w := postJSON(t, router, "/api/v1/analyze", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("blank link", func(t *testing.T) {
		h := NewAnalyzeHandler(&fakeChecker{}, testCheckerConfig(), nil, nil, nil)
		router := setupAnalyzeRouter(h)

		w := postJSON(t, router, "/api/v1/analyze", AnalyzeRequest{Link: "   "})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid json body", func(t *testing.T) {
		h := NewAnalyzeHandler(&fakeChecker{}, testCheckerConfig(), nil, nil, nil)
		router := setupAnalyzeRouter(h)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewReader([]byte("{not json")))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAnalyzeHandler_AnalyzeBatch(t *testing.T) {
	t.Run("successful batch", func(t *testing.T) {
		checker := &fakeChecker{}
		mysqlRepo := &fakeMySQLRepo{}
		redisRepo := newFakeRedisRepo()
		h := NewAnalyzeHandler(checker, testCheckerConfig(), mysqlRepo, redisRepo, nil)
		router := setupAnalyzeRouter(h)

		w := postJSON(t, router, "/api/v1/analyze/batch", BatchAnalyzeRequest{
			Links:       []string{"http://163cn.tv/a", " http://163cn.tv/b ", "", "   "},
			Concurrency: 3,
		})

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Code int                  `json:"code"`
			Data BatchAnalyzeResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 0, resp.Code)
		assert.NotEmpty(t, resp.Data.BatchID)
		assert.Equal(t, 2, resp.Data.Total)
		assert.Len(t, resp.Data.Results, 2)

		// Blank entries are dropped before dispatch.
		assert.Equal(t, []string{"http://163cn.tv/a", "http://163cn.tv/b"}, checker.batchURLs)
		assert.Equal(t, 3, checker.lastConc)

		require.Eventually(t, func() bool { return mysqlRepo.saved() == 2 }, 2*time.Second, 10*time.Millisecond)
		require.Eventually(t, func() bool { return redisRepo.total() == 2 }, 2*time.Second, 10*time.Millisecond)

		counts, err := redisRepo.GetBatchStatusCounts(context.Background(), resp.Data.BatchID)
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"valid": 2}, counts)
	})

	t.Run("plain text one link per line", func(t *testing.T) {
		checker := &fakeChecker{}
		h := NewAnalyzeHandler(checker, testCheckerConfig(), nil, nil, nil)
		router := setupAnalyzeRouter(h)

		body := "http://163cn.tv/a\n\n  http://163cn.tv/b  \n"
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze/batch", strings.NewReader(body))
		req.Header.Set("Content-Type", "text/plain")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data BatchAnalyzeResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Data.Total)
		assert.Equal(t, []string{"http://163cn.tv/a", "http://163cn.tv/b"}, checker.batchURLs)
	})

	t.Run("blank plain text body", func(t *testing.T) {
		h := NewAnalyzeHandler(&fakeChecker{}, testCheckerConfig(), nil, nil, nil)
		router := setupAnalyzeRouter(h)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze/batch", strings.NewReader("\n  \n"))
		req.Header.Set("Content-Type", "text/plain")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("producer takes precedence over direct persistence", func(t *testing.T) {
		checker := &fakeChecker{}
		mysqlRepo := &fakeMySQLRepo{}
		producer := &fakeProducer{}
		h := NewAnalyzeHandler(checker, testCheckerConfig(), mysqlRepo, nil, producer)
		router := setupAnalyzeRouter(h)

		w := postJSON(t, router, "/api/v1/analyze/batch", BatchAnalyzeRequest{
			Links: []string{"http://163cn.tv/a"},
		})

		assert.Equal(t, http.StatusOK, w.Code)
		require.Eventually(t, func() bool { return producer.count() == 1 }, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, 0, mysqlRepo.saved())
		assert.Equal(t, "http://163cn.tv/a", producer.sent[0].SourceURL)
	})

	t.Run("empty links", func(t *testing.T) {
		h := NewAnalyzeHandler(&fakeChecker{}, testCheckerConfig(), nil, nil, nil)
		router := setupAnalyzeRouter(h)

		w := postJSON(t, router, "/api/v1/analyze/batch", BatchAnalyzeRequest{Links: []string{"", "  "}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("too many links", func(t *testing.T) {
		cfg := testCheckerConfig()
		cfg.MaxBatchSize = 2
		h := NewAnalyzeHandler(&fakeChecker{}, cfg, nil, nil, nil)
		router := setupAnalyzeRouter(h)

		w := postJSON(t, router, "/api/v1/analyze/batch", BatchAnalyzeRequest{
			Links: []string{"http://163cn.tv/a", "http://163cn.tv/b", "http://163cn.tv/c"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("concurrency out of range", func(t *testing.T) {
		h := NewAnalyzeHandler(&fakeChecker{}, testCheckerConfig(), nil, nil, nil)
		router := setupAnalyzeRouter(h)

		w := postJSON(t, router, "/api/v1/analyze/batch", BatchAnalyzeRequest{
			Links:       []string{"http://163cn.tv/a"},
			Concurrency: 100,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
