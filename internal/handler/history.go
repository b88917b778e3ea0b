package handler

import (
	"net/http"
	"strconv"

	"giftcheck/internal/repository"

	"github.com/gin-gonic/gin"
)

const defaultHistoryLimit = 100

// HistoryHandler serves the persisted check history and batch statistics
type HistoryHandler struct {
	mysqlRepo repository.MySQLRepositoryInterface
	redisRepo repository.RedisRepositoryInterface
}

// NewHistoryHandler creates a new HistoryHandler
func NewHistoryHandler(
	mysqlRepo repository.MySQLRepositoryInterface,
	redisRepo repository.RedisRepositoryInterface,
) *HistoryHandler {
	return &HistoryHandler{
		mysqlRepo: mysqlRepo,
		redisRepo: redisRepo,
	}
}

// GetHistory handles GET /api/v1/history
// @Summary List persisted check results
// @Description Returns recent check logs, optionally filtered by batch
// @Tags history
// @Produce json
// @Param batch_id query string false "Batch ID"
// @Param limit query int false "Maximum rows"
// @Success 200 {object} Response{data=[]model.CheckLog}
// @Router /api/v1/history [get]
func (h *HistoryHandler) GetHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    http.StatusBadRequest,
				Message: "Invalid limit",
			})
			return
		}
		limit = parsed
	}

	batchID := c.Query("batch_id")

	logs, err := func() (interface{}, error) {
		if batchID != "" {
			return h.mysqlRepo.GetCheckLogs(c.Request.Context(), batchID, limit)
		}
		return h.mysqlRepo.GetRecentCheckLogs(c.Request.Context(), limit)
	}()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    http.StatusInternalServerError,
			Message: "Failed to load history",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    logs,
	})
}

// GetBatchStats handles GET /api/v1/batch/:batchID/stats
// @Summary Get status counters for a batch
// @Description Returns per-status completion counters recorded during a batch run
// @Tags history
// @Produce json
// @Param batchID path string true "Batch ID"
// @Success 200 {object} Response{data=map[string]int64}
// @Router /api/v1/batch/{batchID}/stats [get]
func (h *HistoryHandler) GetBatchStats(c *gin.Context) {
	batchID := c.Param("batchID")

	counts, err := h.redisRepo.GetBatchStatusCounts(c.Request.Context(), batchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    http.StatusInternalServerError,
			Message: "Failed to load batch stats",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    counts,
	})
}
