package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/groupquest/server/audit"
	mw "github.com/groupquest/server/middleware"
	"github.com/groupquest/server/quest"
)

// QuestHandler handles quest coordination REST endpoints.
type QuestHandler struct {
	svc   *quest.Service
	audit *audit.Service
}

// NewQuestHandler creates a new QuestHandler.
func NewQuestHandler(svc *quest.Service, auditSvc *audit.Service) *QuestHandler {
	return &QuestHandler{svc: svc, audit: auditSvc}
}

func (h *QuestHandler) logAction(c *gin.Context, groupID, action string, start time.Time, detail interface{}, err error) {
	if h.audit == nil {
		return
	}
	entry := audit.Entry{
		TraceID:    mw.GetTraceID(c),
		MemberID:   mw.GetMemberID(c),
		GroupID:    groupID,
		Action:     action,
		Detail:     detail,
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	h.audit.Log(entry)
}

type questInviteRequest struct {
	QuestKey string `json:"quest_key" binding:"required"`
}

// Invite handles POST /api/groups/:id/quest/invite.
func (h *QuestHandler) Invite(c *gin.Context) {
	start := time.Now()
	var req questInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	groupID := c.Param("id")
	g, err := h.svc.Invite(c.Request.Context(), groupID, mw.GetMemberID(c), req.QuestKey)
	h.logAction(c, groupID, "quest.invite", start, req, err)
	respondGroup(c, g, err)
}

type voteRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

// Vote handles POST /api/groups/:id/quest/vote. An accepting vote that
// resolves the last pending member also starts the quest in the same call.
func (h *QuestHandler) Vote(c *gin.Context) {
	start := time.Now()
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	groupID := c.Param("id")
	memberID := mw.GetMemberID(c)

	g, err := h.svc.Vote(c.Request.Context(), groupID, memberID, *req.Accept)
	h.logAction(c, groupID, "quest.vote", start, req, err)
	if err != nil {
		respondGroup(c, g, err)
		return
	}

	if *req.Accept {
		g2, started, startErr := h.svc.TryStart(c.Request.Context(), groupID, memberID, false)
		if startErr == nil && started {
			h.logAction(c, groupID, "quest.start", start, nil, nil)
		}
		if g2 != nil {
			g = g2
		}
		respondGroup(c, g, startErr)
		return
	}
	respondGroup(c, g, nil)
}

// ForceStart handles POST /api/groups/:id/quest/force-start. Leader only;
// pending votes are marked rejected.
func (h *QuestHandler) ForceStart(c *gin.Context) {
	start := time.Now()
	groupID := c.Param("id")
	g, _, err := h.svc.TryStart(c.Request.Context(), groupID, mw.GetMemberID(c), true)
	h.logAction(c, groupID, "quest.force_start", start, nil, err)
	respondGroup(c, g, err)
}

// Progress handles POST /api/groups/:id/quest/progress.
func (h *QuestHandler) Progress(c *gin.Context) {
	start := time.Now()
	var req quest.ProgressDelta
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	groupID := c.Param("id")
	g, err := h.svc.ApplyProgress(c.Request.Context(), groupID, mw.GetMemberID(c), req)
	h.logAction(c, groupID, "quest.progress", start, req, err)
	respondGroup(c, g, err)
}

// Abort handles POST /api/groups/:id/quest/abort. Leader only.
func (h *QuestHandler) Abort(c *gin.Context) {
	start := time.Now()
	groupID := c.Param("id")
	g, err := h.svc.Abort(c.Request.Context(), groupID, mw.GetMemberID(c))
	h.logAction(c, groupID, "quest.abort", start, nil, err)
	respondGroup(c, g, err)
}
