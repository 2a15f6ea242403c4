package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/trackid-go/internal/errors"
	"github.com/tphakala/trackid-go/internal/pipeline"
	"github.com/tphakala/trackid-go/internal/track"
)

const healthCheckTimeout = 2 * time.Second

// VolumeRequest sets the playback volume.
type VolumeRequest struct {
	Volume *float64 `json:"volume"`
}

// MuteRequest sets the mute state.
type MuteRequest struct {
	Muted *bool `json:"muted"`
}

// AutoIdentifyRequest toggles the scheduler.
type AutoIdentifyRequest struct {
	Enabled *bool `json:"enabled"`
}

// HistoryResponse is the history list, newest first.
type HistoryResponse struct {
	Tracks   []track.Track `json:"tracks"`
	Count    int           `json:"count"`
	Capacity int           `json:"capacity"`
}

// SearchResponse holds the external search link for a track.
type SearchResponse struct {
	Query string `json:"query"`
	URL   string `json:"url"`
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	resp := map[string]any{
		"status":         "healthy",
		"version":        s.config.Version,
		"uptime":         uptime.Round(time.Second).String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	}

	code := http.StatusOK
	if len(s.checks) > 0 {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
		defer cancel()
		deps := make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			if err := check(ctx); err != nil {
				deps[name] = err.Error()
				resp["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}
		resp["dependencies"] = deps
	}
	return c.JSON(code, resp)
}

func (s *Server) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.pipeline.Snapshot())
}

func (s *Server) startPlayback(c echo.Context) error {
	if err := s.pipeline.Play(c.Request().Context()); err != nil {
		return s.handleError(c, err, "Could not connect to stream", http.StatusBadGateway)
	}
	return c.JSON(http.StatusOK, s.pipeline.Snapshot())
}

func (s *Server) stopPlayback(c echo.Context) error {
	if err := s.pipeline.Stop(); err != nil {
		return s.handleError(c, err, "Could not stop playback", http.StatusInternalServerError)
	}
	return c.JSON(http.StatusOK, s.pipeline.Snapshot())
}

func (s *Server) setVolume(c echo.Context) error {
	var req VolumeRequest
	if err := c.Bind(&req); err != nil || req.Volume == nil {
		return s.handleError(c, err, "volume is required", http.StatusBadRequest)
	}
	if *req.Volume < 0 || *req.Volume > 1 {
		return s.handleError(c, nil, "volume must be between 0 and 1", http.StatusBadRequest)
	}
	s.pipeline.SetVolume(*req.Volume)
	return c.JSON(http.StatusOK, s.pipeline.Snapshot())
}

func (s *Server) setMute(c echo.Context) error {
	var req MuteRequest
	if err := c.Bind(&req); err != nil || req.Muted == nil {
		return s.handleError(c, err, "muted is required", http.StatusBadRequest)
	}
	s.pipeline.SetMuted(*req.Muted)
	return c.JSON(http.StatusOK, s.pipeline.Snapshot())
}

// identify runs one manual attempt and waits for it. A miss is a
// successful response with outcome "miss".
func (s *Server) identify(c echo.Context) error {
	res, err := s.pipeline.Identify(c.Request().Context(), pipeline.TriggerManual)
	if err != nil {
		return s.handleError(c, err, identifyMessage(err), httpStatusFor(err))
	}
	return c.JSON(http.StatusOK, res)
}

func identifyMessage(err error) string {
	switch errors.CategoryOf(err) {
	case errors.CategoryConnection:
		return "Stream is not connected"
	case errors.CategoryInProgress:
		return "Identification already in progress"
	case errors.CategoryInsufficientAudio:
		return "Sample too small, try again"
	case errors.CategoryUnsupportedFormat:
		return "Recording is not supported on this system"
	case errors.CategoryCaptureSetup:
		return "Could not set up audio capture"
	case errors.CategoryIdentificationService:
		return "Identification service error"
	case errors.CategoryValidation:
		return "Identification is not available"
	default:
		return "Identification failed"
	}
}

func (s *Server) setAutoIdentify(c echo.Context) error {
	var req AutoIdentifyRequest
	if err := c.Bind(&req); err != nil || req.Enabled == nil {
		return s.handleError(c, err, "enabled is required", http.StatusBadRequest)
	}
	s.pipeline.SetAutoIdentify(*req.Enabled)
	return c.JSON(http.StatusOK, s.pipeline.Snapshot())
}

func (s *Server) listHistory(c echo.Context) error {
	tracks := s.pipeline.History()
	snap := s.pipeline.Snapshot()
	return c.JSON(http.StatusOK, HistoryResponse{
		Tracks:   tracks,
		Count:    len(tracks),
		Capacity: snap.HistoryCapacity,
	})
}

func (s *Server) clearHistory(c echo.Context) error {
	if err := s.pipeline.ClearHistory(c.Request().Context()); err != nil {
		return s.handleError(c, err, "Could not clear history", http.StatusInternalServerError)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getTrack(c echo.Context) error {
	t, ok := s.pipeline.Track(c.Param("id"))
	if !ok {
		return s.handleError(c, nil, "Track not found", http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, t)
}

// searchTrack returns the external search link for a history entry, or
// redirects to it with ?redirect=true.
func (s *Server) searchTrack(c echo.Context) error {
	t, ok := s.pipeline.Track(c.Param("id"))
	if !ok {
		return s.handleError(c, nil, "Track not found", http.StatusNotFound)
	}
	u := t.SearchURL(s.config.SearchURLTemplate)
	if u == "" {
		return s.handleError(c, nil, "Search is not configured", http.StatusNotImplemented)
	}
	if c.QueryParam("redirect") == "true" {
		return c.Redirect(http.StatusFound, u)
	}
	return c.JSON(http.StatusOK, SearchResponse{Query: t.Query(), URL: u})
}
