package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vigil-ops/vigil-backend-go/internal/core/alerting"
	"github.com/vigil-ops/vigil-backend-go/pkg/utils"
)

type registerAlertRequest struct {
	ID                 string            `json:"id" binding:"required"`
	Metric             string            `json:"metric" binding:"required"`
	Operator           string            `json:"operator" binding:"required"`
	Threshold          float64           `json:"threshold"`
	Window             string            `json:"window" binding:"required"`
	Severity           string            `json:"severity" binding:"required"`
	LabelFilter        map[string]string `json:"label_filter"`
	Cooldown           string            `json:"cooldown"`
	Enabled            *bool             `json:"enabled"`
	RatioAgainstMetric string            `json:"ratio_against_metric"`
	EscalationPolicy   string            `json:"escalation_policy"`
}

// RegisterAlert creates an alert definition. Definitions are immutable;
// updating means delete plus re-create.
func (h *Handlers) RegisterAlert(c *gin.Context) {
	var req registerAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	window, err := time.ParseDuration(req.Window)
	if err != nil {
		utils.SendError(c, http.StatusBadRequest, "invalid window: "+err.Error())
		return
	}
	var cooldown time.Duration
	if req.Cooldown != "" {
		if cooldown, err = time.ParseDuration(req.Cooldown); err != nil {
			utils.SendError(c, http.StatusBadRequest, "invalid cooldown: "+err.Error())
			return
		}
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	def := alerting.Definition{
		ID:                 req.ID,
		Metric:             req.Metric,
		Operator:           alerting.Operator(req.Operator),
		Threshold:          req.Threshold,
		Window:             window,
		Severity:           alerting.Severity(req.Severity),
		LabelFilter:        req.LabelFilter,
		Cooldown:           cooldown,
		Enabled:            enabled,
		RatioAgainstMetric: req.RatioAgainstMetric,
		EscalationPolicy:   req.EscalationPolicy,
	}
	if err := h.engine.RegisterAlert(def); err != nil {
		utils.SendEngineError(c, err)
		return
	}
	utils.SendSuccess(c, def)
}

// ListAlertDefinitions returns the registered alert definitions.
func (h *Handlers) ListAlertDefinitions(c *gin.Context) {
	utils.SendSuccess(c, h.engine.AlertDefinitions())
}

// UnregisterAlert removes an alert definition.
func (h *Handlers) UnregisterAlert(c *gin.Context) {
	if err := h.engine.UnregisterAlert(c.Param("id")); err != nil {
		utils.SendEngineError(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"deleted": true})
}

// ActiveAlerts lists live tracked alerts, newest first.
func (h *Handlers) ActiveAlerts(c *gin.Context) {
	alerts := h.engine.ActiveAlerts(filterFromQuery(c))
	utils.SendSuccessWithMeta(c, alerts, gin.H{"count": len(alerts)})
}

// AlertHistory lists resolved alerts, newest first.
func (h *Handlers) AlertHistory(c *gin.Context) {
	limit := 100
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 0 {
			utils.SendError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	alerts := h.engine.AlertHistory(limit, filterFromQuery(c))
	utils.SendSuccessWithMeta(c, alerts, gin.H{"count": len(alerts)})
}

// AlertStatistics returns counts and MTTA/MTTR over a window.
func (h *Handlers) AlertStatistics(c *gin.Context) {
	window := 24 * time.Hour
	if w := c.Query("window"); w != "" {
		parsed, err := time.ParseDuration(w)
		if err != nil {
			utils.SendError(c, http.StatusBadRequest, "invalid window: "+err.Error())
			return
		}
		window = parsed
	}
	utils.SendSuccess(c, h.engine.AlertStatistics(window))
}

type operatorActionRequest struct {
	By      string `json:"by"`
	Comment string `json:"comment"`
}

// AcknowledgeAlert records an operator acknowledgment.
func (h *Handlers) AcknowledgeAlert(c *gin.Context) {
	var req operatorActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.By == "" {
		utils.SendError(c, http.StatusBadRequest, "acknowledgment requires 'by'")
		return
	}
	if err := h.engine.Acknowledge(c.Param("id"), req.By, req.Comment); err != nil {
		utils.SendEngineError(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"acknowledged": true})
}

// ResolveAlert resolves a tracked alert on behalf of an operator.
func (h *Handlers) ResolveAlert(c *gin.Context) {
	var req operatorActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.By == "" {
		utils.SendError(c, http.StatusBadRequest, "manual resolution requires 'by'")
		return
	}
	if err := h.engine.Resolve(c.Param("id"), req.By, req.Comment); err != nil {
		utils.SendEngineError(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"resolved": true})
}

type addTagsRequest struct {
	Tags []string `json:"tags" binding:"required"`
}

// AddTags attaches tags to an active alert.
func (h *Handlers) AddTags(c *gin.Context) {
	var req addTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.engine.AddTags(c.Param("id"), req.Tags...); err != nil {
		utils.SendEngineError(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"tagged": true})
}

func filterFromQuery(c *gin.Context) alerting.Filter {
	f := alerting.Filter{
		Status:   alerting.Status(c.Query("status")),
		Severity: alerting.Severity(c.Query("severity")),
		Tag:      c.Query("tag"),
	}
	if since := c.Query("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			f.Since = t
		}
	}
	if until := c.Query("until"); until != "" {
		if t, err := time.Parse(time.RFC3339, until); err == nil {
			f.Until = t
		}
	}
	return f
}
