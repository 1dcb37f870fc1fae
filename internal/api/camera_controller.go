package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"digimenu/internal/qrlink"
)

type CameraSession interface {
	Start(ctx context.Context, handler func(qrlink.Result)) error
	Stop()
	Running() bool
}

// CameraController drives the device camera. A capture outlives the request
// that started it, so it runs on the service context.
type CameraController struct {
	responder
	base    context.Context
	session CameraSession
	scans   ScanDispatcher
	logger  *zap.Logger
}

func NewCameraController(base context.Context, session CameraSession, scans ScanDispatcher, logger *zap.Logger) *CameraController {
	return &CameraController{
		responder: responder{logger: logger},
		base:      base,
		session:   session,
		scans:     scans,
		logger:    logger,
	}
}

type cameraStatusResponse struct {
	Scanning bool `json:"scanning"`
}

func (c *CameraController) StartScan(w http.ResponseWriter, r *http.Request) {
	traceID := traceIDFrom(r)
	logger := c.logger.With(zap.String("traceId", traceID))

	err := c.session.Start(c.base, func(res qrlink.Result) {
		if err := c.scans.Dispatch(c.base, res); err != nil {
			c.logger.Warn("dispatching camera scan", zap.String("kind", res.Kind.String()), zap.Error(err))
		}
	})
	if err != nil {
		c.handleError(w, traceID, err, logger)
		return
	}
	c.writeJSON(w, http.StatusAccepted, cameraStatusResponse{Scanning: true})
}

func (c *CameraController) StopScan(w http.ResponseWriter, r *http.Request) {
	c.session.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func (c *CameraController) Status(w http.ResponseWriter, r *http.Request) {
	c.writeJSON(w, http.StatusOK, cameraStatusResponse{Scanning: c.session.Running()})
}
