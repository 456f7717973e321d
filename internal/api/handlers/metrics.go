package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vigil-ops/vigil-backend-go/internal/core/metrics"
	"github.com/vigil-ops/vigil-backend-go/pkg/utils"
)

type registerMetricRequest struct {
	Name               string   `json:"name" binding:"required"`
	Kind               string   `json:"kind" binding:"required"`
	Unit               string   `json:"unit"`
	LabelNames         []string `json:"label_names"`
	CollectionInterval string   `json:"collection_interval"`
}

// RegisterMetric creates a metric definition.
func (h *Handlers) RegisterMetric(c *gin.Context) {
	var req registerMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	interval := 30 * time.Second
	if req.CollectionInterval != "" {
		parsed, err := time.ParseDuration(req.CollectionInterval)
		if err != nil {
			utils.SendError(c, http.StatusBadRequest, "invalid collection_interval: "+err.Error())
			return
		}
		interval = parsed
	}

	def := metrics.Definition{
		Name:               req.Name,
		Kind:               metrics.Kind(req.Kind),
		Unit:               req.Unit,
		LabelNames:         req.LabelNames,
		CollectionInterval: interval,
	}
	if err := h.engine.RegisterMetric(def); err != nil {
		utils.SendEngineError(c, err)
		return
	}
	utils.SendSuccess(c, def)
}

type recordRequest struct {
	Value  float64           `json:"value"`
	Labels map[string]string `json:"labels"`
}

// RecordPoint appends one sample to a metric's series.
func (h *Handlers) RecordPoint(c *gin.Context) {
	var req recordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.Record(c.Param("name"), req.Value, req.Labels); err != nil {
		utils.SendEngineError(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"recorded": true})
}

// QueryMetric returns points within a window, optionally bucketed.
// Label filters arrive as label_<name>=<value> query parameters.
func (h *Handlers) QueryMetric(c *gin.Context) {
	window := 15 * time.Minute
	if w := c.Query("window"); w != "" {
		parsed, err := time.ParseDuration(w)
		if err != nil {
			utils.SendError(c, http.StatusBadRequest, "invalid window: "+err.Error())
			return
		}
		window = parsed
	}

	opts := metrics.QueryOptions{
		Aggregation: metrics.Aggregation(c.Query("aggregation")),
		LabelFilter: labelFilterFromQuery(c),
	}

	points, err := h.engine.Query(c.Param("name"), window, opts)
	if err != nil {
		utils.SendEngineError(c, err)
		return
	}
	utils.SendSuccessWithMeta(c, points, gin.H{"count": len(points), "window": window.String()})
}

// LatestValue returns the most recent sample within the lookback.
func (h *Handlers) LatestValue(c *gin.Context) {
	point, err := h.engine.LatestValue(c.Param("name"), labelFilterFromQuery(c))
	if err != nil {
		utils.SendEngineError(c, err)
		return
	}
	utils.SendSuccess(c, point)
}

func labelFilterFromQuery(c *gin.Context) map[string]string {
	var filter map[string]string
	for key, values := range c.Request.URL.Query() {
		if !strings.HasPrefix(key, "label_") || len(values) == 0 {
			continue
		}
		if filter == nil {
			filter = make(map[string]string)
		}
		filter[strings.TrimPrefix(key, "label_")] = values[0]
	}
	return filter
}
