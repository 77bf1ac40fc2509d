package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	drepo "LiqPulse/internal/domain/repository"
	"LiqPulse/internal/service/window"
	"LiqPulse/internal/usecase"
	xhttp "LiqPulse/pkg/http"
	xlogger "LiqPulse/pkg/logger"
)

// StatusHandler exposes the read-only operational surface: liveness, the
// currently open windows and the recent alert ring.
type StatusHandler struct {
	logger  *xlogger.Logger
	pipe    *usecase.AlertPipeline
	store   *window.Store
	stream  drepo.LiquidationStream
	archive drepo.Archive // nil when backend is kafka or none
	started time.Time
}

func NewStatusHandler(logger *xlogger.Logger, pipe *usecase.AlertPipeline, store *window.Store, stream drepo.LiquidationStream) *StatusHandler {
	return &StatusHandler{
		logger:  logger,
		pipe:    pipe,
		store:   store,
		stream:  stream,
		started: time.Now(),
	}
}

// SetArchive wires the optional archive for health reporting.
func (h *StatusHandler) SetArchive(a drepo.Archive) { h.archive = a }

func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/status", h.Status)
	g.GET("/windows", h.Windows)
	g.GET("/alerts/recent", h.RecentAlerts)
}

func (h *StatusHandler) Health(c echo.Context) error {
	if h.archive != nil {
		if err := h.archive.Health(c.Request().Context()); err != nil {
			h.logger.Warn("archive unhealthy", xlogger.Error(err))
			return xhttp.AppErrorResponse(c,
				xhttp.NewAppError("ERR_ARCHIVE", "archive unreachable", http.StatusServiceUnavailable).WithError(err))
		}
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *StatusHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"uptime_sec":       int(time.Since(h.started).Seconds()),
		"stream_connected": h.stream.IsConnected(),
		"active_windows":   len(h.pipe.ActiveInstruments()),
		"recent_alerts":    len(h.pipe.RecentAlerts()),
	})
}

// WindowsRequest filters the open-window listing.
type WindowsRequest struct {
	Instrument string `query:"instrument"`
}

// RecentAlertsRequest caps the alert listing.
type RecentAlertsRequest struct {
	Limit int `query:"limit" default:"20" validate:"omitempty,min=1,max=64"`
}

type windowRow struct {
	Instrument     string  `json:"instrument"`
	TotalVolume    float64 `json:"total_usd"`
	DominantSide   string  `json:"dominant_side"`
	DominancePct   float64 `json:"dominance_pct"`
	PriceChangePct float64 `json:"price_change_pct"`
	EventCount     int     `json:"event_count"`
	DurationSec    float64 `json:"duration_sec"`
}

func (h *StatusHandler) Windows(c echo.Context) error {
	req := &WindowsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	now := time.Now()
	instruments := h.store.ActiveInstruments(now)
	rows := make([]windowRow, 0, len(instruments))
	for _, in := range instruments {
		if req.Instrument != "" && in != req.Instrument {
			continue
		}
		st, ok := h.store.StatsOf(in, now)
		if !ok {
			continue
		}
		rows = append(rows, windowRow{
			Instrument:     in,
			TotalVolume:    st.TotalVolume,
			DominantSide:   string(st.DominantSide),
			DominancePct:   st.DominancePct,
			PriceChangePct: st.PriceChangePct,
			EventCount:     st.EventCount,
			DurationSec:    st.DurationSec,
		})
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *StatusHandler) RecentAlerts(c echo.Context) error {
	req := &RecentAlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	alerts := h.pipe.RecentAlerts()
	if len(alerts) > req.Limit {
		alerts = alerts[:req.Limit]
	}
	return xhttp.ListResponse(c, alerts, int64(len(alerts)))
}
