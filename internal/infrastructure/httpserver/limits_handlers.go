package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/skybeam/engage/internal/core/domain/analytics"
	"github.com/skybeam/engage/internal/core/domain/limits"
)

// listConstraints returns every stored frequency constraint
func (s *Server) listConstraints(c echo.Context) error {
	constraints, err := s.limitStore.GetConstraints(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load constraints")
	}
	if constraints == nil {
		constraints = []limits.FrequencyConstraint{}
	}
	return c.JSON(http.StatusOK, constraints)
}

// updateConstraints replaces the stored constraint set with the supplied one
func (s *Server) updateConstraints(c echo.Context) error {
	var constraints []limits.FrequencyConstraint
	if err := c.Bind(&constraints); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	for _, constraint := range constraints {
		if err := constraint.Validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	updated, err := s.limits.UpdateConstraints(constraints).Get(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "constraint update failed")
	}
	return c.JSON(http.StatusOK, map[string]bool{"updated": updated})
}

// getRateLimitStatus reports the admission state for one tag
func (s *Server) getRateLimitStatus(c echo.Context) error {
	tag := c.Param("tag")
	status := s.rateLimiter.Status(tag)
	if status == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no rule for tag")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"tag":               tag,
		"status":            status.Status.String(),
		"next_available_ms": status.NextAvailable.Milliseconds(),
	})
}

type channelRequest struct {
	ChannelID string `json:"channel_id" validate:"required"`
}

// setChannel assigns the channel id used for token minting
func (s *Server) setChannel(c echo.Context) error {
	var req channelRequest
	if err := c.Bind(&req); err != nil || req.ChannelID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "channel_id is required")
	}
	if err := s.auth.SetChannelID(c.Request().Context(), req.ChannelID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store channel id")
	}
	return c.JSON(http.StatusOK, map[string]string{"channel_id": req.ChannelID})
}

// getChannel returns the currently assigned channel id
func (s *Server) getChannel(c echo.Context) error {
	channelID, ok, err := s.auth.ChannelID(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read channel id")
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "channel not registered")
	}
	return c.JSON(http.StatusOK, map[string]string{"channel_id": channelID})
}

type eventRequest struct {
	Type      string          `json:"type" validate:"required"`
	SessionID string          `json:"session_id"`
	Data      json.RawMessage `json:"data"`
}

// addEvent stores an analytics event and schedules its upload
func (s *Server) addEvent(c echo.Context) error {
	var req eventRequest
	if err := c.Bind(&req); err != nil || req.Type == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "type is required")
	}

	event := &analytics.Event{
		Type:       req.Type,
		SessionID:  req.SessionID,
		OccurredAt: time.Now(),
		Body:       req.Data,
	}
	if err := s.events.AddEvent(c.Request().Context(), event); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store event")
	}
	return c.JSON(http.StatusAccepted, map[string]string{"event_id": event.ID.String()})
}
