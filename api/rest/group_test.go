package rest_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupInviteJoinFlow(t *testing.T) {
	ts := newTestServer(t)
	aliceID, aliceToken := ts.login(t, "alice")
	bobID, bobToken := ts.login(t, "bob")
	ts.seedParty(t, "p1", aliceID)

	w := postJSON(ts.r, "/api/groups/p1/invite", map[string]string{"member_id": bobID},
		bearer(aliceToken)...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// an invitee can view the party before joining
	w = getReq(ts.r, "/api/groups/p1", bearer(bobToken)...)
	assert.Equal(t, http.StatusOK, w.Code)

	w = postJSON(ts.r, "/api/groups/p1/join", nil, bearer(bobToken)...)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Group struct {
			Members []string `json:"members"`
			Invites []string `json:"invites"`
		} `json:"group"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Group.Members, bobID)
	assert.NotContains(t, resp.Group.Invites, bobID)
}

func TestGroupInvite_Conflicts(t *testing.T) {
	ts := newTestServer(t)
	aliceID, aliceToken := ts.login(t, "alice")
	bobID, _ := ts.login(t, "bob")
	ts.seedParty(t, "p1", aliceID)

	w := postJSON(ts.r, "/api/groups/p1/invite", map[string]string{"member_id": bobID},
		bearer(aliceToken)...)
	require.Equal(t, http.StatusOK, w.Code)

	// repeat invite conflicts
	w = postJSON(ts.r, "/api/groups/p1/invite", map[string]string{"member_id": bobID},
		bearer(aliceToken)...)
	assert.Equal(t, http.StatusConflict, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "already_invited", resp["kind"])

	// inviting yourself conflicts as already a member
	w = postJSON(ts.r, "/api/groups/p1/invite", map[string]string{"member_id": aliceID},
		bearer(aliceToken)...)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGroupDetail_AccessControl(t *testing.T) {
	ts := newTestServer(t)
	aliceID, _ := ts.login(t, "alice")
	_, bobToken := ts.login(t, "bob")
	ts.seedParty(t, "p1", aliceID)

	w := getReq(ts.r, "/api/groups/p1", bearer(bobToken)...)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = getReq(ts.r, "/api/groups/missing", bearer(bobToken)...)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGroupLeave(t *testing.T) {
	ts := newTestServer(t)
	aliceID, _ := ts.login(t, "alice")
	bobID, bobToken := ts.login(t, "bob")
	ts.seedParty(t, "p1", aliceID, bobID)

	w := postJSON(ts.r, "/api/groups/p1/leave", nil, bearer(bobToken)...)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Group struct {
			Members []string `json:"members"`
		} `json:"group"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotContains(t, resp.Group.Members, bobID)
}

func TestGroupRemoveMember_LeaderOnly(t *testing.T) {
	ts := newTestServer(t)
	aliceID, aliceToken := ts.login(t, "alice")
	bobID, bobToken := ts.login(t, "bob")
	ts.seedParty(t, "p1", aliceID, bobID)

	w := deleteReq(ts.r, "/api/groups/p1/members/"+aliceID, bearer(bobToken)...)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = deleteReq(ts.r, "/api/groups/p1/members/"+bobID, bearer(aliceToken)...)
	assert.Equal(t, http.StatusOK, w.Code)

	// removing again: target no longer present
	w = deleteReq(ts.r, "/api/groups/p1/members/"+bobID, bearer(aliceToken)...)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
