package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/modwarden/warden/automod/countstore"
	"github.com/modwarden/warden/automod/dispatch"
	"github.com/modwarden/warden/automod/engine"
	"github.com/modwarden/warden/automod/event"
	"github.com/modwarden/warden/automod/ledger"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
)

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Message string `json:"msg,omitempty"`
}

type OutcomeResponse struct {
	Flagged       bool             `json:"flagged"`
	Violation     *event.Violation `json:"violation,omitempty"`
	TotalPoints   int              `json:"total_points"`
	Action        string           `json:"action,omitempty"`
	Executed      bool             `json:"executed"`
	Withheld      bool             `json:"withheld,omitempty"`
	DispatchError string           `json:"dispatch_error,omitempty"`
	LedgerError   string           `json:"ledger_error,omitempty"`
	Notice        string           `json:"notice,omitempty"`
}

func outcomeResponse(out *engine.Outcome) OutcomeResponse {
	resp := OutcomeResponse{}
	if out == nil || out.Violation == nil {
		return resp
	}
	resp.Flagged = true
	resp.Violation = out.Violation
	resp.TotalPoints = out.TotalPoints
	resp.Executed = out.Executed
	resp.Withheld = out.Withheld
	if out.Decision != nil {
		resp.Action = out.Decision.Action.String()
	}
	if out.DispatchErr != nil {
		resp.DispatchError = out.DispatchErr.Error()
	}
	if out.LedgerErr != nil {
		resp.LedgerError = out.LedgerErr.Error()
	}
	if out.Notice != nil {
		resp.Notice = out.Notice.Text
	}
	return resp
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	} else if errors.Is(err, ledger.ErrLedgerIO) {
		code = http.StatusServiceUnavailable
		errorMessage = "warning ledger unavailable"
	}
	if code >= 500 {
		srv.logger.Warn("warden-http-internal-error", "err", err)
	}
	c.JSON(code, GenericStatus{Status: "error", Daemon: "warden", Message: errorMessage})
}

func (srv *Server) HandleHome(c echo.Context) error {
	return c.String(http.StatusOK, "warden is alive")
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	if srv.db != nil {
		sqldb, err := srv.db.DB()
		if err == nil {
			err = sqldb.PingContext(c.Request().Context())
		}
		if err != nil {
			srv.logger.Error("database health check failed", "err", err)
			return c.JSON(http.StatusServiceUnavailable, GenericStatus{Status: "error", Daemon: "warden", Message: "database unavailable"})
		}
	}
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "warden", Version: versioninfo.Short()})
}

// Runs a single inbound message through moderation and reports the outcome.
func (srv *Server) HandleEvent(c echo.Context) error {
	var evt event.Event
	if err := c.Bind(&evt); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event JSON")
	}
	if evt.Scope.GuildID == "" || evt.Scope.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "event scope requires guild_id and user_id")
	}

	out, err := srv.engine.ProcessEvent(c.Request().Context(), &evt)
	if err != nil {
		if errors.Is(err, ledger.ErrLedgerIO) {
			// the notice was still sent; report what happened alongside the failure
			return c.JSON(http.StatusServiceUnavailable, outcomeResponse(out))
		}
		return err
	}
	return c.JSON(http.StatusOK, outcomeResponse(out))
}

func scopeParam(c echo.Context) event.Scope {
	return event.Scope{GuildID: c.Param("guild"), UserID: c.Param("user")}
}

func (srv *Server) HandleGetWarnings(c echo.Context) error {
	rep, err := srv.engine.ScopeReport(c.Request().Context(), scopeParam(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rep)
}

func (srv *Server) HandleResetWarnings(c echo.Context) error {
	scope := scopeParam(c)
	if err := srv.engine.Ledger.Reset(c.Request().Context(), scope); err != nil {
		return err
	}
	srv.logger.Info("warnings reset by moderator", "guild", scope.GuildID, "user", scope.UserID)
	rec := dispatch.NewAuditRecord(dispatch.RecordLedger, scope)
	rec.Reason = "reset by moderator"
	rec.Success = true
	if err := srv.engine.Audit.Append(c.Request().Context(), rec); err != nil {
		srv.logger.Error("failed to append audit record", "err", err)
	}
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "warden"})
}

func limitParam(c echo.Context, def, max int) (int, error) {
	s := c.QueryParam("limit")
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > max {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", max))
	}
	return n, nil
}

func (srv *Server) HandleTop(c echo.Context) error {
	limit, err := limitParam(c, 10, 100)
	if err != nil {
		return err
	}
	top, err := srv.engine.Ledger.Top(c.Request().Context(), c.Param("guild"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, top)
}

func (srv *Server) HandleAudit(c echo.Context) error {
	if srv.audit == nil {
		return echo.NewHTTPError(http.StatusNotFound, "audit table not configured")
	}
	limit, err := limitParam(c, 50, 500)
	if err != nil {
		return err
	}
	recs, err := srv.audit.Recent(c.Request().Context(), c.Param("guild"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, recs)
}

func (srv *Server) HandleStats(c echo.Context) error {
	period := c.QueryParam("period")
	if period == "" {
		period = countstore.PeriodDay
	}
	if !engine.ValidPeriod(period) {
		return echo.NewHTTPError(http.StatusBadRequest, "period must be one of: total, day, hour")
	}
	st, err := srv.engine.GuildStats(c.Request().Context(), c.Param("guild"), period)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}
