package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vigil-ops/vigil-backend-go/internal/core/alerting"
	"github.com/vigil-ops/vigil-backend-go/pkg/utils"
)

type stageRequest struct {
	Level        int      `json:"level" binding:"required"`
	DelayMinutes int      `json:"delay_minutes"`
	Channels     []string `json:"channels" binding:"required"`
	NotifyAll    bool     `json:"notify_all"`
}

type registerPolicyRequest struct {
	ID               string         `json:"id" binding:"required"`
	RepeatFinalStage bool           `json:"repeat_final_stage"`
	Stages           []stageRequest `json:"stages" binding:"required"`
}

// RegisterEscalationPolicy upserts an escalation policy.
func (h *Handlers) RegisterEscalationPolicy(c *gin.Context) {
	var req registerPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}

	policy := alerting.EscalationPolicy{
		ID:               req.ID,
		RepeatFinalStage: req.RepeatFinalStage,
	}
	for _, st := range req.Stages {
		policy.Stages = append(policy.Stages, alerting.EscalationStage{
			Level:     st.Level,
			Delay:     time.Duration(st.DelayMinutes) * time.Minute,
			Channels:  st.Channels,
			NotifyAll: st.NotifyAll,
		})
	}
	if err := h.engine.RegisterEscalationPolicy(policy); err != nil {
		utils.SendEngineError(c, err)
		return
	}
	utils.SendSuccess(c, policy)
}

// ListEscalationPolicies returns the registered policies.
func (h *Handlers) ListEscalationPolicies(c *gin.Context) {
	utils.SendSuccess(c, h.engine.EscalationPolicies())
}

type setDefaultPolicyRequest struct {
	ID string `json:"id" binding:"required"`
}

// SetDefaultEscalationPolicy switches the process-wide default.
func (h *Handlers) SetDefaultEscalationPolicy(c *gin.Context) {
	var req setDefaultPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.engine.SetDefaultEscalationPolicy(req.ID); err != nil {
		utils.SendEngineError(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"default": req.ID})
}
