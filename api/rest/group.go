package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/groupquest/server/apperr"
	"github.com/groupquest/server/audit"
	"github.com/groupquest/server/group"
	mw "github.com/groupquest/server/middleware"
	"github.com/groupquest/server/model"
	"github.com/groupquest/server/store"
)

// GroupHandler handles membership REST endpoints.
type GroupHandler struct {
	svc    *group.Service
	groups *store.GroupStore
	audit  *audit.Service
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(svc *group.Service, groups *store.GroupStore, auditSvc *audit.Service) *GroupHandler {
	return &GroupHandler{svc: svc, groups: groups, audit: auditSvc}
}

func (h *GroupHandler) logAction(c *gin.Context, groupID, action string, start time.Time, err error) {
	if h.audit == nil {
		return
	}
	entry := audit.Entry{
		TraceID:    mw.GetTraceID(c),
		MemberID:   mw.GetMemberID(c),
		GroupID:    groupID,
		Action:     action,
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	h.audit.Log(entry)
}

// Detail handles GET /api/groups/:id. Only members and invitees may view a
// party; guilds are visible to any authenticated member.
func (h *GroupHandler) Detail(c *gin.Context) {
	g, err := h.groups.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	memberID := mw.GetMemberID(c)
	if g.Type == model.GroupTypeParty && !g.HasMember(memberID) && !g.HasInvite(memberID) {
		respondError(c, apperr.New(apperr.KindUnauthorized, "not a member of this party"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": g})
}

type inviteRequest struct {
	MemberID string `json:"member_id" binding:"required"`
}

// Invite handles POST /api/groups/:id/invite.
func (h *GroupHandler) Invite(c *gin.Context) {
	start := time.Now()
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	groupID := c.Param("id")
	g, err := h.svc.Invite(c.Request.Context(), groupID, mw.GetMemberID(c), req.MemberID)
	h.logAction(c, groupID, "group.invite", start, err)
	respondGroup(c, g, err)
}

// Join handles POST /api/groups/:id/join.
func (h *GroupHandler) Join(c *gin.Context) {
	start := time.Now()
	groupID := c.Param("id")
	g, err := h.svc.Join(c.Request.Context(), groupID, mw.GetMemberID(c))
	h.logAction(c, groupID, "group.join", start, err)
	respondGroup(c, g, err)
}

// Leave handles POST /api/groups/:id/leave.
func (h *GroupHandler) Leave(c *gin.Context) {
	start := time.Now()
	groupID := c.Param("id")
	g, err := h.svc.Leave(c.Request.Context(), groupID, mw.GetMemberID(c))
	h.logAction(c, groupID, "group.leave", start, err)
	respondGroup(c, g, err)
}

// RemoveMember handles DELETE /api/groups/:id/members/:mid.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	start := time.Now()
	groupID := c.Param("id")
	g, err := h.svc.RemoveMember(c.Request.Context(), groupID, mw.GetMemberID(c), c.Param("mid"))
	h.logAction(c, groupID, "group.remove_member", start, err)
	respondGroup(c, g, err)
}
