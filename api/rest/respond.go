package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/groupquest/server/apperr"
	"github.com/groupquest/server/model"
)

// statusOf maps an error kind to an HTTP status.
func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound, apperr.KindQuestNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthorized:
		return http.StatusForbidden
	case apperr.KindAlreadyMember, apperr.KindAlreadyInvited, apperr.KindAlreadyInParty,
		apperr.KindQuestInProgress, apperr.KindNoPendingInvitation, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a structured error response.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(statusOf(kind), gin.H{"error": err.Error(), "kind": string(kind)})
}

// respondGroup writes a group result. A PartialFailure error does not hide
// the committed group write: the response is 200 with the failed member IDs
// listed so a client or operator can follow up.
func respondGroup(c *gin.Context, g *model.Group, err error) {
	if err != nil {
		if apperr.Is(err, apperr.KindPartialFailure) {
			failed := []string{}
			var e *apperr.Error
			if errors.As(err, &e) {
				failed = e.FailedMembers
			}
			c.JSON(http.StatusOK, gin.H{"group": g, "failed_members": failed})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": g})
}
