package daemon

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"reelcast/internal/api"
	"reelcast/internal/logging"
	"reelcast/internal/reconcile"
	"reelcast/internal/store"
	"reelcast/internal/workflow"
)

// timeNow is the API's clock; tests replace it.
var timeNow = time.Now

func (s *apiServer) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	payload := api.Health{Status: "ok", Database: "ok"}
	if s.c.Dispatcher != nil {
		payload.QueueDepth = s.c.Dispatcher.Pending()
	}
	status := http.StatusOK
	if err := s.c.Store.Ping(ctx); err != nil {
		payload.Status = "degraded"
		payload.Database = err.Error()
		status = http.StatusServiceUnavailable
	}
	if s.c.Feeds != nil {
		report, ok, err := s.c.Feeds.Cached(ctx)
		if err != nil {
			s.logger.Warn("feed health unreadable", logging.Error(err))
		}
		if ok {
			healthy := report.Healthy()
			payload.FeedsHealthy = &healthy
			payload.Feeds = api.FromFeedReport(report)
			payload.FeedsAsOf = report.CheckedAt.UTC().Format(time.RFC3339)
		}
	}
	c.JSON(status, payload)
}

func (s *apiServer) handleReconcile(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		reports []reconcile.Report
		err     error
	)
	if raw := c.Param("stage"); raw != "" {
		stage, ok := reconcile.ParseStage(raw)
		if !ok {
			s.writeError(c, http.StatusNotFound, "unknown stage")
			return
		}
		var report reconcile.Report
		report, err = s.c.Reconciler.RunStage(ctx, stage)
		reports = []reconcile.Report{report}
	} else {
		reports, err = s.c.Reconciler.RunAll(ctx)
	}
	resp := api.ReconcileResponse{Reports: api.FromReconcileReports(reports)}
	if err != nil {
		resp.Error = err.Error()
		c.JSON(http.StatusInternalServerError, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *apiServer) handleListWorkflows(c *gin.Context) {
	var statuses []store.Status
	for _, value := range c.QueryArray("status") {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := store.ParseStatus(part)
			if !ok {
				s.writeError(c, http.StatusBadRequest, "unknown status "+strconv.Quote(part))
				return
			}
			statuses = append(statuses, status)
		}
	}
	resp, err := s.c.Workflows.List(c.Request.Context(), statuses...)
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *apiServer) handleGetWorkflow(c *gin.Context) {
	kind, ok := store.ParseKind(c.Param("kind"))
	if !ok {
		s.writeError(c, http.StatusNotFound, "unknown kind")
		return
	}
	wf, err := s.c.Workflows.Describe(c.Request.Context(), store.Ref{Kind: kind, ID: c.Param("id")})
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if wf == nil {
		s.writeError(c, http.StatusNotFound, "workflow not found")
		return
	}
	c.JSON(http.StatusOK, api.WorkflowResponse{Workflow: *wf})
}

func (s *apiServer) handleCreateWorkflow(c *gin.Context) {
	var req api.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	kind, ok := store.ParseKind(req.Kind)
	if !ok {
		s.writeError(c, http.StatusBadRequest, "unknown kind "+strconv.Quote(req.Kind))
		return
	}
	ctx := c.Request.Context()
	rec, err := s.c.Engine.Create(ctx, &store.Record{
		Kind:        kind,
		Script:      strings.TrimSpace(req.Script),
		Title:       strings.TrimSpace(req.Title),
		CaptionText: strings.TrimSpace(req.CaptionText),
	})
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if req.Kickoff == nil || *req.Kickoff {
		result, err := s.c.Engine.Kickoff(ctx, rec.Ref(), workflow.SourceAPI)
		if err != nil && !result.Applied {
			// the record exists; the kickoff sweep claims it later
			logging.WarnWithContext(s.logger, "kickoff after create failed", "kickoff_failed",
				logging.String(logging.FieldWorkflowID, rec.ID),
				logging.Error(err),
			)
		}
		if result.Record != nil {
			rec = result.Record
		}
	}
	c.JSON(http.StatusCreated, api.WorkflowResponse{Workflow: api.FromRecord(rec)})
}

func (s *apiServer) handleListAlerts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "50"))
	result, err := s.c.Alerts.ListUnresolved(c.Request.Context(), page, size)
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, api.FromAlertPage(result))
}

func (s *apiServer) handleAlertStats(c *gin.Context) {
	stats, err := s.c.Alerts.Stats(c.Request.Context(), timeNow())
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, api.FromAlertStats(stats))
}

func (s *apiServer) handleResolveAlert(c *gin.Context) {
	err := s.c.Alerts.Resolve(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(c, http.StatusNotFound, "alert not found")
		return
	}
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": true, "id": c.Param("id")})
}

func (s *apiServer) handleDeadLetters(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	letters, err := s.c.Store.ListDeadLetters(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"deadLetters": api.FromDeadLetters(letters)})
}

func (s *apiServer) handleFeeds(c *gin.Context) {
	report, err := s.c.Feeds.Check(c.Request.Context())
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"healthy":   report.Healthy(),
		"cached":    report.Cached,
		"checkedAt": report.CheckedAt.UTC().Format(time.RFC3339),
		"feeds":     api.FromFeedReport(report),
	})
}
