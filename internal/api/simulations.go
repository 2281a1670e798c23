package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stock-bot-lab/internal/config"
	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/orchestrator"
	"stock-bot-lab/internal/reporting"
	"stock-bot-lab/internal/verification"
)

// SimulationHandler exposes the simulation operations over HTTP.
type SimulationHandler struct {
	Manager  *orchestrator.Manager
	Reports  *reporting.Generator
	Verifier *verification.RunVerifier
	Logger   *zap.Logger
}

type createResponse struct {
	RunID string `json:"run_id"`
}

func (h *SimulationHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/simulations")
	group.POST("", h.create)
	group.GET("", h.list)
	group.GET("/:id/status", h.status)
	group.GET("/:id/results", h.results)
	group.GET("/:id/progress/ws", h.stream)
	group.GET("/:id/compare/:other", h.compare)
	group.POST("/:id/pause", h.pause)
	group.POST("/:id/resume", h.resume)
	group.POST("/:id/cancel", h.cancel)
	group.POST("/:id/rerun", h.rerun)

	r.POST("/api/v1/evaluate", h.evaluate)
}

func (h *SimulationHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *SimulationHandler) create(c *gin.Context) {
	var spec config.SimulationSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	req, err := spec.Build()
	if err != nil {
		fail(c, err)
		return
	}
	id, err := h.Manager.CreateSimulation(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	h.logger().Info("simulation created", zap.String("run_id", id), zap.Int("bots", len(req.Bots)))
	c.JSON(http.StatusAccepted, apiResponse{Message: "accepted", Data: createResponse{RunID: id}})
}

func (h *SimulationHandler) list(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	runs, err := h.Manager.ListRuns(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, runs, map[string]any{"limit": limit, "count": len(runs)})
}

func (h *SimulationHandler) status(c *gin.Context) {
	p, err := h.Manager.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, p, nil)
}

// results renders JSON by default; format=csv, daily_csv or markdown
// returns the report as text.
func (h *SimulationHandler) results(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "json")))
	switch format {
	case "json":
		res, err := h.Manager.GetResults(ctx, id)
		if err != nil {
			fail(c, err)
			return
		}
		Ok(c, res, nil)
	case "csv":
		res, err := h.Manager.GetResults(ctx, id)
		if err != nil {
			fail(c, err)
			return
		}
		c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(reporting.RenderCSV(reporting.BotRows(res.Bots))))
	case "daily_csv", "markdown":
		if h.Reports == nil {
			Error(c, http.StatusNotImplemented, "reports unavailable", nil)
			return
		}
		report, err := h.Reports.Generate(ctx, id)
		if err != nil {
			fail(c, err)
			return
		}
		if format == "markdown" {
			c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(reporting.RenderMarkdown(report)))
			return
		}
		c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(reporting.RenderDailyCSV(report.Daily)))
	default:
		Error(c, http.StatusBadRequest, "unknown format "+format, nil)
	}
}

// compare checks that two finished runs produced identical results,
// typically a run and its rerun.
func (h *SimulationHandler) compare(c *gin.Context) {
	if h.Verifier == nil {
		Error(c, http.StatusNotImplemented, "verification unavailable", nil)
		return
	}
	ctx := c.Request.Context()
	ids := []string{c.Param("id"), c.Param("other")}
	for _, id := range ids {
		p, err := h.Manager.GetStatus(ctx, id)
		if err != nil {
			fail(c, err)
			return
		}
		if !p.Status.IsTerminal() {
			Error(c, http.StatusConflict, "run "+id+" is "+string(p.Status), nil)
			return
		}
	}
	report, err := h.Verifier.Compare(ctx, ids[0], ids[1])
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, report, nil)
}

func (h *SimulationHandler) pause(c *gin.Context) {
	h.control(c, "pause", h.Manager.Pause)
}

func (h *SimulationHandler) resume(c *gin.Context) {
	h.control(c, "resume", h.Manager.Resume)
}

func (h *SimulationHandler) cancel(c *gin.Context) {
	h.control(c, "cancel", h.Manager.Cancel)
}

func (h *SimulationHandler) control(c *gin.Context, op string, fn func(ctx context.Context, runID string) error) {
	id := c.Param("id")
	if err := fn(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	h.logger().Info("simulation "+op, zap.String("run_id", id))
	p, err := h.Manager.GetStatus(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, p, nil)
}

func (h *SimulationHandler) rerun(c *gin.Context) {
	id, err := h.Manager.Rerun(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	h.logger().Info("simulation rerun", zap.String("parent_run_id", c.Param("id")), zap.String("run_id", id))
	c.JSON(http.StatusAccepted, apiResponse{Message: "accepted", Data: createResponse{RunID: id}})
}

// evaluateRequest warms indicator history from bars of Interval; empty means 1m.
type evaluateRequest struct {
	Bot      config.BotSpec `json:"bot"`
	Tick     domain.Tick    `json:"tick"`
	Interval string         `json:"interval"`
}

func (h *SimulationHandler) evaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body: "+err.Error(), nil)
		return
	}
	if req.Tick.Symbol == "" || req.Tick.Timestamp.IsZero() || req.Tick.Price <= 0 {
		Error(c, http.StatusBadRequest, "tick needs symbol, timestamp and a positive price", nil)
		return
	}
	cfg, err := req.Bot.Build()
	if err != nil {
		fail(c, err)
		return
	}
	req.Tick.Timestamp = req.Tick.Timestamp.UTC()
	eval, err := h.Manager.Evaluate(c.Request.Context(), cfg, req.Tick, req.Interval)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, eval, nil)
}
