package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"meetingsattendance/internal/attendance"
	"meetingsattendance/internal/auth"
	"meetingsattendance/internal/logging"
	"meetingsattendance/internal/platform"
	"meetingsattendance/internal/queue"
)

func (s *Server) issueToken(c *gin.Context) {
	var req struct {
		APIKey  string `json:"api_key" binding:"required"`
		Subject string `json:"subject"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !auth.KeyMatches(req.APIKey, s.opts.OperatorKey) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}
	if req.Subject == "" {
		req.Subject = "operator"
	}
	tokens, err := s.opts.Issuer.Issue(req.Subject, auth.RoleOperator)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, tokenBody(tokens))
}

func (s *Server) refreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	tokens, err := s.opts.Issuer.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, tokenBody(tokens))
}

func tokenBody(t auth.TokenPair) gin.H {
	return gin.H{
		"access_token":  t.AccessToken,
		"refresh_token": t.RefreshToken,
		"expires_at":    t.AccessExp.Unix(),
	}
}

func (s *Server) listPlatforms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"platforms": platform.SupportedPlatforms()})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	if v := c.Query(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func (s *Server) createSession(c *gin.Context) {
	var in attendance.Session
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	sess, err := s.opts.Service.CreateSession(c.Request.Context(), in)
	if err != nil {
		fail(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) listSessions(c *gin.Context) {
	sessions, err := s.opts.Service.ListSessions(c.Request.Context(), queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		fail(c, err, nil)
		return
	}
	if sessions == nil {
		sessions = []attendance.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) getSession(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sess, err := s.opts.Service.GetSession(c.Request.Context(), id)
	if err != nil {
		fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) updateSession(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in attendance.Session
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	in.ID = id
	sess, err := s.opts.Service.UpdateSession(c.Request.Context(), in)
	if err != nil {
		fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) deleteSession(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.opts.Service.DeleteSession(c.Request.Context(), id); err != nil {
		fail(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) closeSession(c *gin.Context) {
	s.changeStatus(c, s.opts.Service.CloseSession)
}

func (s *Server) reopenSession(c *gin.Context) {
	s.changeStatus(c, s.opts.Service.ReopenSession)
}

func (s *Server) changeStatus(c *gin.Context, change func(ctx context.Context, id int64) (attendance.Session, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sess, err := change(c.Request.Context(), id)
	if err != nil {
		fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// syncSession runs a sync inline, or enqueues it for the worker with ?async=true.
func (s *Server) syncSession(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Start int64 `json:"start"`
		End   int64 `json:"end"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}
	if req.Start < 0 || req.End < 0 || (req.End > 0 && req.End < req.Start) {
		badRequest(c, "invalid time window")
		return
	}
	ctx := c.Request.Context()

	if c.Query("async") == "true" {
		if s.opts.Queue == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "async sync not configured"})
			return
		}
		if _, err := s.opts.Service.GetSession(ctx, id); err != nil {
			fail(c, err, nil)
			return
		}
		job, err := queue.PublishSync(ctx, s.opts.Queue, queue.SyncJob{
			SessionID: id,
			Start:     req.Start,
			End:       req.End,
			RequestID: logging.RequestID(ctx),
		})
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Int64("session_id", id).Msg("queue publish failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue unavailable"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "session_id": id})
		return
	}

	stats, err := s.opts.Service.Sync(ctx, id, req.Start, req.End)
	if err != nil {
		fail(c, err, gin.H{"stats": stats})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) listUnassigned(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	entries, err := s.opts.Service.ListUnassigned(c.Request.Context(), id)
	if err != nil {
		fail(c, err, nil)
		return
	}
	if entries == nil {
		entries = []attendance.UnassignedEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"records": entries})
}

func (s *Server) manualAssign(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	rec, err := s.opts.Service.ManualAssign(c.Request.Context(), id, req.UserID)
	if err != nil {
		fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) checkCompletion(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	res, err := s.opts.Service.CheckCompletion(c.Request.Context(), id, userID)
	if err != nil {
		fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) checkAllCompletions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := s.opts.Service.CheckAllCompletions(c.Request.Context(), id)
	if err != nil {
		fail(c, err, gin.H{"completions": res})
		return
	}
	c.JSON(http.StatusOK, gin.H{"completions": res})
}

func (s *Server) report(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rows, err := s.opts.Service.Report(c.Request.Context(), id)
	if err != nil {
		fail(c, err, nil)
		return
	}
	if rows == nil {
		rows = []attendance.ReportRow{}
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

func (s *Server) summary(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	sum, err := s.opts.Service.Summary(c.Request.Context(), id)
	if err != nil {
		fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) auditEvents(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if s.opts.Audit == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit log not configured"})
		return
	}
	events, err := s.opts.Audit.Recent(c.Request.Context(), id, queryInt(c, "limit", 50))
	if err != nil {
		fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) createUser(c *gin.Context) {
	if s.opts.Users == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "user directory is read-only"})
		return
	}
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	id, err := s.opts.Users.CreateUser(c.Request.Context(), req.Email)
	if err != nil {
		fail(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "email": req.Email})
}
