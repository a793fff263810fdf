// Package http exposes the dispatcher over REST plus the Twilio webhooks that
// drive live call legs.
package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/microdev1/debt-collection-agent/internal/call"
	"github.com/microdev1/debt-collection-agent/internal/dispatch"
	"github.com/microdev1/debt-collection-agent/internal/monitor"
	"github.com/microdev1/debt-collection-agent/internal/store"
	"github.com/microdev1/debt-collection-agent/internal/telephony"
)

type Handlers struct {
	Dispatcher *dispatch.Dispatcher
	Store      *store.Store
	Hub        *monitor.Hub
	Gateway    *telephony.Gateway
}

func NewHandlers(d *dispatch.Dispatcher, s *store.Store, h *monitor.Hub, g *telephony.Gateway) Handlers {
	return Handlers{Dispatcher: d, Store: s, Hub: h, Gateway: g}
}

func (h Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.POST("/calls", h.startCall)
	e.GET("/calls", h.recentCalls)
	e.GET("/calls/:id", h.callStatus)
	e.POST("/calls/:id/abort", h.abortCall)
	if h.Hub != nil {
		e.GET("/calls/:id/live", h.liveFeed)
	}
	if h.Gateway != nil {
		e.POST("/twilio/turn/:id", h.twilioTurn)
		e.POST("/twilio/status/:id", h.twilioStatus)
	}
}

type startCallRequest struct {
	Debtor                call.Debtor `json:"debtor"`
	MaxCounterOffers      int         `json:"max_counter_offers,omitempty"`
	MaxClarifications     int         `json:"max_clarifications,omitempty"`
	MaxSilenceRetries     int         `json:"max_silence_retries,omitempty"`
	SilenceTimeoutSeconds int         `json:"silence_timeout_seconds,omitempty"`
}

type startCallResponse struct {
	CallID string `json:"call_id"`
}

func (h Handlers) startCall(c echo.Context) error {
	var req startCallRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	cfg := call.Config{
		MaxCounterOffers:  req.MaxCounterOffers,
		MaxClarifications: req.MaxClarifications,
		MaxSilenceRetries: req.MaxSilenceRetries,
		SilenceTimeout:    time.Duration(req.SilenceTimeoutSeconds) * time.Second,
	}
	callID, err := h.Dispatcher.StartCall(req.Debtor, cfg)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	c.Echo().Logger.Infof("started call %s for account %s", callID, req.Debtor.AccountNumber)
	return c.JSON(http.StatusAccepted, startCallResponse{CallID: callID})
}

// callStatus serves the live snapshot for a running call and falls back to
// the outcome index for finished ones.
func (h Handlers) callStatus(c echo.Context) error {
	id := c.Param("id")
	if snap, ok := h.Dispatcher.Status(id); ok {
		return c.JSON(http.StatusOK, snap)
	}
	if h.Store != nil {
		rec, err := h.Store.Get(id)
		if err == nil {
			return c.JSON(http.StatusOK, rec)
		}
		if !errors.Is(err, store.ErrNotFound) {
			c.Echo().Logger.Errorf("call status %s: %v", id, err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		}
	}
	return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown call id"})
}

func (h Handlers) recentCalls(c echo.Context) error {
	if h.Store == nil {
		return c.JSON(http.StatusOK, []store.CallRecord{})
	}
	recs, err := h.Store.Recent(50)
	if err != nil {
		c.Echo().Logger.Errorf("recent calls: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
	}
	return c.JSON(http.StatusOK, recs)
}

func (h Handlers) abortCall(c echo.Context) error {
	id := c.Param("id")
	if err := h.Dispatcher.Abort(id); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusAccepted)
}

func (h Handlers) liveFeed(c echo.Context) error {
	return h.Hub.Serve(c.Response(), c.Request(), c.Param("id"))
}

func (h Handlers) twilioTurn(c echo.Context) error {
	params, ok := c.Get("twilioParams").(map[string]string)
	if !ok {
		return c.String(http.StatusBadRequest, "missing Twilio parameters")
	}
	adapter, ok := h.Gateway.Adapter(c.Param("id"))
	if !ok {
		return c.String(http.StatusGone, "call not active")
	}
	xml, err := adapter.HandlePoll(c.Request().Context(), params)
	if err != nil {
		c.Echo().Logger.Errorf("twilio turn %s: %v", c.Param("id"), err)
		return c.String(http.StatusInternalServerError, "turn failed")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, xml)
}

func (h Handlers) twilioStatus(c echo.Context) error {
	params, ok := c.Get("twilioParams").(map[string]string)
	if !ok {
		return c.String(http.StatusBadRequest, "missing Twilio parameters")
	}
	if adapter, ok := h.Gateway.Adapter(c.Param("id")); ok {
		adapter.HandleStatus(params)
	}
	return c.NoContent(http.StatusNoContent)
}
