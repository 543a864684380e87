package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sentineld/internal/domain"
	"sentineld/internal/guard"
	"sentineld/internal/service"
	"sentineld/internal/storage"
)

// sentinelResponse is the JSON view of a sentinel. The signing credential
// never leaves the server.
type sentinelResponse struct {
	ID                 string  `json:"id"`
	Owner              string  `json:"owner"`
	WalletAddress      string  `json:"wallet_address"`
	Threshold          float64 `json:"threshold"`
	Condition          string  `json:"condition"`
	PaymentMethod      string  `json:"payment_method"`
	NotificationTarget string  `json:"notification_target"`
	Network            string  `json:"network"`
	Status             string  `json:"status"`
	IsActive           bool    `json:"is_active"`
	CreatedAt          int64   `json:"created_at"`
	UpdatedAt          int64   `json:"updated_at"`
}

func toSentinelResponse(s *domain.Sentinel) sentinelResponse {
	return sentinelResponse{
		ID:                 s.ID,
		Owner:              s.Owner,
		WalletAddress:      s.WalletAddress,
		Threshold:          s.Threshold,
		Condition:          string(s.Condition),
		PaymentMethod:      string(s.PaymentMethod),
		NotificationTarget: s.NotificationTarget,
		Network:            string(s.Network),
		Status:             string(s.Status),
		IsActive:           s.IsActive,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

type fundingResponse struct {
	Gas      float64 `json:"gas"`
	Token    float64 `json:"token"`
	IsFunded bool    `json:"is_funded"`
}

func toFundingResponse(f guard.Funding) fundingResponse {
	return fundingResponse{Gas: f.Gas, Token: f.Token, IsFunded: f.IsFunded}
}

type activityResponse struct {
	ID                 string  `json:"id"`
	SentinelID         string  `json:"sentinel_id"`
	Owner              string  `json:"owner"`
	Price              float64 `json:"price"`
	Cost               float64 `json:"cost"`
	Triggered          bool    `json:"triggered"`
	Status             string  `json:"status"`
	PaymentMethod      string  `json:"payment_method"`
	TransactionReceipt *string `json:"transaction_receipt,omitempty"`
	SettlementTimeMs   *int64  `json:"settlement_time_ms,omitempty"`
	ErrorMessage       *string `json:"error_message,omitempty"`
	CreatedAt          int64   `json:"created_at"`
}

func toActivityResponse(a *domain.Activity) activityResponse {
	return activityResponse{
		ID:                 a.ID,
		SentinelID:         a.SentinelID,
		Owner:              a.Owner,
		Price:              a.Price,
		Cost:               a.Cost,
		Triggered:          a.Triggered,
		Status:             string(a.Status),
		PaymentMethod:      string(a.PaymentMethod),
		TransactionReceipt: a.TransactionReceipt,
		SettlementTimeMs:   a.SettlementTimeMs,
		ErrorMessage:       a.ErrorMessage,
		CreatedAt:          a.CreatedAt,
	}
}

type insightResponse struct {
	ID              string  `json:"id"`
	SentinelID      string  `json:"sentinel_id"`
	Owner           string  `json:"owner"`
	Text            string  `json:"text"`
	ConfidenceScore int     `json:"confidence_score"`
	Sentiment       string  `json:"sentiment"`
	Cost            float64 `json:"cost"`
	CreatedAt       int64   `json:"created_at"`
}

func toInsightResponse(i *domain.Insight) insightResponse {
	return insightResponse{
		ID:              i.ID,
		SentinelID:      i.SentinelID,
		Owner:           i.Owner,
		Text:            i.Text,
		ConfidenceScore: i.ConfidenceScore,
		Sentiment:       string(i.Sentiment),
		Cost:            i.Cost,
		CreatedAt:       i.CreatedAt,
	}
}

type statsResponse struct {
	TotalChecks        int64   `json:"total_checks"`
	TotalSpent         float64 `json:"total_spent"`
	AlertsTriggered    int64   `json:"alerts_triggered"`
	SuccessRate        float64 `json:"success_rate"`
	AvgCost            float64 `json:"avg_cost"`
	LastCheckTimestamp *int64  `json:"last_check_timestamp,omitempty"`
}

func toStatsResponse(s *domain.ActivityStats) statsResponse {
	return statsResponse{
		TotalChecks:        s.TotalChecks,
		TotalSpent:         s.TotalSpent,
		AlertsTriggered:    s.AlertsTriggered,
		SuccessRate:        s.SuccessRate,
		AvgCost:            s.AvgCost,
		LastCheckTimestamp: s.LastCheckTimestamp,
	}
}

// CreateSentinel handles POST /sentinels.
func (h *Handler) CreateSentinel(c *gin.Context) {
	var req struct {
		Owner             string `json:"owner" binding:"required"`
		WalletAddress     string `json:"wallet_address" binding:"required"`
		SigningCredential string `json:"signing_credential" binding:"required"`
		// Pointer so a threshold of exactly 0 passes the required check.
		Threshold          *float64 `json:"threshold" binding:"required"`
		Condition          string   `json:"condition" binding:"required"`
		PaymentMethod      string   `json:"payment_method" binding:"required"`
		NotificationTarget string   `json:"notification_target"`
		Network            string   `json:"network" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sentinel, err := h.service.Create(c.Request.Context(), service.CreateParams{
		Owner:              req.Owner,
		WalletAddress:      req.WalletAddress,
		SigningCredential:  req.SigningCredential,
		Threshold:          *req.Threshold,
		Condition:          domain.Condition(req.Condition),
		PaymentMethod:      domain.PaymentMethod(req.PaymentMethod),
		NotificationTarget: req.NotificationTarget,
		Network:            domain.Network(req.Network),
	})
	if err != nil {
		h.logger.Printf("create sentinel failed: %v", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, toSentinelResponse(sentinel))
}

// GetSentinel handles GET /sentinels/:id.
func (h *Handler) GetSentinel(c *gin.Context) {
	sentinel, err := h.sentinels.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toSentinelResponse(sentinel))
}

// GetSentinelsByOwner handles GET /sentinels/owner/:owner_id.
func (h *Handler) GetSentinelsByOwner(c *gin.Context) {
	sentinels, err := h.sentinels.GetByOwner(c.Request.Context(), c.Param("owner_id"))
	if err != nil {
		h.logger.Printf("get sentinels by owner failed: %v", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	out := make([]sentinelResponse, 0, len(sentinels))
	for _, s := range sentinels {
		out = append(out, toSentinelResponse(s))
	}
	c.JSON(http.StatusOK, out)
}

// DeleteSentinel handles DELETE /sentinels/:id.
func (h *Handler) DeleteSentinel(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// StartSentinel handles POST /sentinels/:id/start.
func (h *Handler) StartSentinel(c *gin.Context) {
	h.lifecycle(c, h.service.Start)
}

// StopSentinel handles POST /sentinels/:id/stop.
func (h *Handler) StopSentinel(c *gin.Context) {
	h.lifecycle(c, h.service.Stop)
}

// ResumeSentinel handles POST /sentinels/:id/resume.
func (h *Handler) ResumeSentinel(c *gin.Context) {
	h.lifecycle(c, h.service.Resume)
}

// RefreshFunding handles POST /sentinels/:id/refresh.
func (h *Handler) RefreshFunding(c *gin.Context) {
	h.lifecycle(c, h.service.Refresh)
}

// lifecycle runs one lifecycle action and renders sentinel plus funding.
func (h *Handler) lifecycle(c *gin.Context, action func(ctx context.Context, id string) (*domain.Sentinel, guard.Funding, error)) {
	sentinel, funding, err := action(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Printf("lifecycle action failed for %s: %v", c.Param("id"), err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sentinel": toSentinelResponse(sentinel),
		"funding":  toFundingResponse(funding),
	})
}

// GetFunding handles GET /sentinels/:id/funding: a live balance read
// against the funding minimums, without changing the sentinel's status.
func (h *Handler) GetFunding(c *gin.Context) {
	sentinel, err := h.sentinels.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	funding, err := h.guard.Evaluate(c.Request.Context(), sentinel)
	if err != nil {
		h.logger.Printf("funding evaluation failed for %s: %v", sentinel.ID, err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toFundingResponse(funding))
}

// GetActivities handles GET /sentinels/:id/activities with paging.
func (h *Handler) GetActivities(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	ascending := c.Query("order") == "asc"

	activities, total, err := h.activity.Query(c.Request.Context(), storage.ActivityQuery{
		SentinelID: c.Param("id"),
		Limit:      limit,
		Offset:     offset,
		Ascending:  ascending,
	})
	if err != nil {
		h.logger.Printf("query activities failed: %v", err)
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	out := make([]activityResponse, 0, len(activities))
	for _, a := range activities {
		out = append(out, toActivityResponse(a))
	}
	c.JSON(http.StatusOK, gin.H{
		"activities": out,
		"total":      total,
		"limit":      limit,
		"offset":     offset,
	})
}

// GetSentinelStats handles GET /sentinels/:id/stats.
func (h *Handler) GetSentinelStats(c *gin.Context) {
	stats, err := h.activity.Stats(c.Request.Context(), storage.StatsFilter{SentinelID: c.Param("id")})
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toStatsResponse(stats))
}

// GetOwnerStats handles GET /owners/:owner_id/stats.
func (h *Handler) GetOwnerStats(c *gin.Context) {
	stats, err := h.activity.Stats(c.Request.Context(), storage.StatsFilter{Owner: c.Param("owner_id")})
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toStatsResponse(stats))
}

// GetInsights handles GET /sentinels/:id/insights.
func (h *Handler) GetInsights(c *gin.Context) {
	insights, err := h.insights.GetBySentinel(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFromError(err), gin.H{"error": err.Error()})
		return
	}

	out := make([]insightResponse, 0, len(insights))
	for _, i := range insights {
		out = append(out, toInsightResponse(i))
	}
	c.JSON(http.StatusOK, out)
}

// statusFromError maps domain errors onto HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrDuplicateKey):
		return http.StatusConflict
	case errors.Is(err, guard.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// intQuery reads an integer query parameter with a default.
func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
