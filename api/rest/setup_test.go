package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/groupquest/server/api/rest"
	"github.com/groupquest/server/catalog"
	"github.com/groupquest/server/config"
	"github.com/groupquest/server/events"
	"github.com/groupquest/server/fanout"
	"github.com/groupquest/server/group"
	"github.com/groupquest/server/hook"
	mw "github.com/groupquest/server/middleware"
	"github.com/groupquest/server/model"
	"github.com/groupquest/server/quest"
	"github.com/groupquest/server/store"
	"github.com/groupquest/server/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// testServer bundles the full HTTP stack over an in-memory database.
type testServer struct {
	r       *gin.Engine
	groups  *store.GroupStore
	members *store.MemberStore
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)
	db := testutil.SetupTestDB(t)
	c := testutil.SetupTestCache(t)
	logger := testutil.Logger()
	sec := config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: 72 * time.Hour}

	groupStore := store.NewGroupStore(db, 0)
	memberStore := store.NewMemberStore(db, 0)
	driver := fanout.NewDriver(memberStore, logger)
	pub := events.NewPublisher(nil, logger)
	hooks := hook.NewCenter()

	cat, err := catalog.New([]*catalog.QuestDef{
		{Key: "q.dragon", Title: "Dragon", Boss: &catalog.BossDef{HP: 100}},
		{Key: "q.eggs", Title: "Eggs", Collect: map[string]int{"egg": 2}},
	})
	require.NoError(t, err)

	groupSvc := group.NewService(groupStore, memberStore, driver, pub, hooks, logger)
	questSvc := quest.NewService(groupStore, memberStore, cat, driver, pub, hooks, logger)

	authH := rest.NewAuthHandler(memberStore, c, sec)
	memberH := rest.NewMemberHandler(memberStore, groupStore)
	groupH := rest.NewGroupHandler(groupSvc, groupStore, nil)
	questH := rest.NewQuestHandler(questSvc, nil)

	r := gin.New()
	r.Use(mw.TraceID())
	r.POST("/api/auth/login", authH.Login)
	authed := r.Group("/api", mw.Auth(sec, c))
	authed.POST("/auth/logout", authH.Logout)
	authed.POST("/auth/refresh", authH.Refresh)
	authed.GET("/members/me", memberH.Me)
	authed.GET("/members/:id", memberH.Get)
	authed.GET("/groups/:id", groupH.Detail)
	authed.POST("/groups/:id/invite", groupH.Invite)
	authed.POST("/groups/:id/join", groupH.Join)
	authed.POST("/groups/:id/leave", groupH.Leave)
	authed.DELETE("/groups/:id/members/:mid", groupH.RemoveMember)
	authed.POST("/groups/:id/quest/invite", questH.Invite)
	authed.POST("/groups/:id/quest/vote", questH.Vote)
	authed.POST("/groups/:id/quest/force-start", questH.ForceStart)
	authed.POST("/groups/:id/quest/progress", questH.Progress)
	authed.POST("/groups/:id/quest/abort", questH.Abort)

	return &testServer{r: r, groups: groupStore, members: memberStore}
}

// login registers (first call) or authenticates a member and returns
// (member ID, bearer token).
func (ts *testServer) login(t *testing.T, username string) (string, string) {
	t.Helper()
	w := postJSON(ts.r, "/api/auth/login", map[string]string{
		"username": username, "password": "pass1234",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["member_id"].(string), resp["token"].(string)
}

// seedParty creates a party row directly in the store.
func (ts *testServer) seedParty(t *testing.T, id, leaderID string, memberIDs ...string) {
	t.Helper()
	all := append([]string{leaderID}, memberIDs...)
	require.NoError(t, ts.groups.Create(context.Background(), &model.Group{
		ID: id, Type: model.GroupTypeParty, Name: "party " + id,
		LeaderID: leaderID, Members: datatypes.NewJSONSlice(all),
	}))
}

func postJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		buf.Write(b)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func getReq(r *gin.Engine, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func deleteReq(r *gin.Engine, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodDelete, path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(token string) []string {
	return []string{"Authorization", "Bearer " + token}
}
