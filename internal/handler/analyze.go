package handler

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"giftcheck/internal/config"
	"giftcheck/internal/model"
	"giftcheck/internal/mq"
	"giftcheck/internal/repository"
	"giftcheck/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CheckerInterface defines the interface for link analysis (for testing)
type CheckerInterface interface {
	AnalyzeOne(ctx context.Context, sourceURL string) *model.AnalysisResult
	AnalyzeBatch(ctx context.Context, urls []string, concurrency int, onResult func(*model.AnalysisResult)) []*model.AnalysisResult
}

// AnalyzeHandler handles link analysis requests
type AnalyzeHandler struct {
	checker    CheckerInterface
	cfg        *config.CheckerConfig
	mysqlRepo  repository.MySQLRepositoryInterface
	redisRepo  repository.RedisRepositoryInterface
	mqProducer mq.ProducerInterface
}

// NewAnalyzeHandler creates a new AnalyzeHandler
func NewAnalyzeHandler(
	checker CheckerInterface,
	cfg *config.CheckerConfig,
	mysqlRepo repository.MySQLRepositoryInterface,
	redisRepo repository.RedisRepositoryInterface,
	mqProducer mq.ProducerInterface,
) *AnalyzeHandler {
	// A nil *mq.Producer wrapped in the interface compares non-nil and would
	// route every result onto the no-op MQ branch; treat it as no producer so
	// results still reach MySQL directly.
	if p, ok := mqProducer.(*mq.Producer); ok && p == nil {
		mqProducer = nil
	}
	return &AnalyzeHandler{
		checker:    checker,
		cfg:        cfg,
		mysqlRepo:  mysqlRepo,
		redisRepo:  redisRepo,
		mqProducer: mqProducer,
	}
}

// AnalyzeRequest is a single-link analysis request
type AnalyzeRequest struct {
	Link string `json:"link" binding:"required"`
}

// BatchAnalyzeRequest is a batch analysis request
type BatchAnalyzeRequest struct {
	Links       []string `json:"links" binding:"required"`
	Concurrency int      `json:"concurrency"`
}

// BatchAnalyzeResponse is the batch analysis result set
type BatchAnalyzeResponse struct {
	BatchID   string                  `json:"batch_id"`
	Results   []*model.AnalysisResult `json:"results"`
	Total     int                     `json:"total"`
	Timestamp int64                   `json:"timestamp"`
}

// Analyze handles POST /api/v1/analyze
// @Summary Analyze a single promotional link
// @Description Resolves the short link and reports its redemption status
// @Tags analyze
// @Accept json
// @Produce json
// @Param request body AnalyzeRequest true "Analyze request"
// @Success 200 {object} Response{data=model.AnalysisResult}
// @Router /api/v1/analyze [post]
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    http.StatusBadRequest,
			Message: "Invalid request: " + err.Error(),
		})
		return
	}

	link := strings.TrimSpace(req.Link)
	if link == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    http.StatusBadRequest,
			Message: "Link must not be empty",
		})
		return
	}

	result := h.checker.AnalyzeOne(c.Request.Context(), link)
	h.recordResult("", result)

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    result,
	})
}

// AnalyzeBatch handles POST /api/v1/analyze/batch
// @Summary Analyze a batch of promotional links
// @Description Analyzes up to the configured maximum of links concurrently and returns all results. Accepts a JSON body or a text/plain one-link-per-line body.
// @Tags analyze
// @Accept json,plain
// @Produce json
// @Param request body BatchAnalyzeRequest true "Batch analyze request"
// @Success 200 {object} Response{data=BatchAnalyzeResponse}
// @Router /api/v1/analyze/batch [post]
func (h *AnalyzeHandler) AnalyzeBatch(c *gin.Context) {
	var req BatchAnalyzeRequest
	if c.ContentType() == "text/plain" {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    http.StatusBadRequest,
				Message: "Invalid request: " + err.Error(),
			})
			return
		}
		req.Links = util.SplitLinks(string(body))
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    http.StatusBadRequest,
			Message: "Invalid request: " + err.Error(),
		})
		return
	}

	links := make([]string, 0, len(req.Links))
	for _, link := range req.Links {
		if trimmed := strings.TrimSpace(link); trimmed != "" {
			links = append(links, trimmed)
		}
	}

	if len(links) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    http.StatusBadRequest,
			Message: "Links must not be empty",
		})
		return
	}
	if len(links) > h.cfg.MaxBatchSize {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    http.StatusBadRequest,
			Message: "Too many links in one batch",
		})
		return
	}
	if req.Concurrency < 0 || req.Concurrency > h.cfg.MaxConcurrency {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    http.StatusBadRequest,
			Message: "Concurrency out of range",
		})
		return
	}

	batchID := uuid.NewString()
	results := h.checker.AnalyzeBatch(c.Request.Context(), links, req.Concurrency, func(r *model.AnalysisResult) {
		h.recordResult(batchID, r)
	})

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data: BatchAnalyzeResponse{
			BatchID:   batchID,
			Results:   results,
			Total:     len(results),
			Timestamp: time.Now().UnixMilli(),
		},
	})
}

// recordResult publishes a completed check for persistence and bumps the
// per-batch counters. Runs off the request path; analysis results are
// returned to the caller regardless of recording failures.
func (h *AnalyzeHandler) recordResult(batchID string, r *model.AnalysisResult) {
	cl := model.NewCheckLog(batchID, r)

	status := cl.Status
	if status == "" {
		status = cl.Outcome
	}

	if h.redisRepo != nil && batchID != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := h.redisRepo.IncrBatchStatus(ctx, batchID, status); err != nil {
				log.Error().Err(err).Str("batch_id", batchID).Msg("Failed to record batch status")
			}
		}()
	}

	if h.mqProducer != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			msg := &mq.CheckResultMessage{
				BatchID:     batchID,
				SourceURL:   cl.SourceURL,
				RedirectURL: cl.RedirectURL,
				Category:    cl.Category,
				Outcome:     cl.Outcome,
				Status:      cl.Status,
				Message:     cl.Message,
				CheckedAt:   cl.CheckedAt,
			}
			if err := h.mqProducer.SendCheckResult(ctx, msg); err != nil {
				log.Error().Err(err).Str("source_url", cl.SourceURL).Msg("Failed to send check result to MQ")
			}
		}()
		return
	}

	// No MQ configured: persist directly.
	if h.mysqlRepo != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.mysqlRepo.SaveCheckLog(ctx, cl); err != nil {
				log.Error().Err(err).Str("source_url", cl.SourceURL).Msg("Failed to save check log")
			}
		}()
	}
}

// Response is the standard API response
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is the error API response
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
