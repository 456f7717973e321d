package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/vigil-ops/vigil-backend-go/internal/config"
	"github.com/vigil-ops/vigil-backend-go/internal/core/engine"
	"github.com/vigil-ops/vigil-backend-go/internal/websocket"
)

// Handlers carries the shared dependencies for all API handlers.
type Handlers struct {
	cfg    *config.Config
	engine *engine.Engine
	hub    *websocket.Hub
	log    *logrus.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(cfg *config.Config, eng *engine.Engine, hub *websocket.Hub, log *logrus.Logger) *Handlers {
	return &Handlers{
		cfg:    cfg,
		engine: eng,
		hub:    hub,
		log:    log,
	}
}
