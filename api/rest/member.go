package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/groupquest/server/middleware"
	"github.com/groupquest/server/store"
)

// MemberHandler handles member REST endpoints.
type MemberHandler struct {
	members *store.MemberStore
	groups  *store.GroupStore
}

// NewMemberHandler creates a new MemberHandler.
func NewMemberHandler(members *store.MemberStore, groups *store.GroupStore) *MemberHandler {
	return &MemberHandler{members: members, groups: groups}
}

// Me handles GET /api/members/me: the caller's own record including pending
// invitations, quest mirror and scroll balances, plus the caller's current
// party if any.
func (h *MemberHandler) Me(c *gin.Context) {
	memberID := mw.GetMemberID(c)
	m, err := h.members.Get(c.Request.Context(), memberID)
	if err != nil {
		respondError(c, err)
		return
	}
	party, err := h.groups.FindPartyOf(c.Request.Context(), memberID)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{
		"member":        m,
		"quest_scrolls": m.Scrolls(),
	}
	if party != nil {
		resp["party_id"] = party.ID
	}
	c.JSON(http.StatusOK, resp)
}

// Get handles GET /api/members/:id: the public view of another member.
func (h *MemberHandler) Get(c *gin.Context) {
	m, err := h.members.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           m.ID,
		"username":     m.Username,
		"quest_mirror": m.Mirror(),
	})
}
