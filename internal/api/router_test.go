package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/trustcore/config"
	"github.com/d60-Lab/trustcore/internal/api/handler"
	"github.com/d60-Lab/trustcore/internal/api/middleware"
	"github.com/d60-Lab/trustcore/internal/cache"
	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/repository"
	"github.com/d60-Lab/trustcore/internal/semantic"
	"github.com/d60-Lab/trustcore/internal/service"
	"github.com/d60-Lab/trustcore/internal/testutil"
)

type allowAll struct{}

func (allowAll) Classify(context.Context, string, semantic.Profile) (semantic.Result, error) {
	return semantic.Result{Safe: true, Reason: "ok"}, nil
}

type server struct {
	t      *testing.T
	db     *gorm.DB
	cfg    *config.Config
	engine *gin.Engine
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := testutil.NewDB(t)
	clock := testutil.NewClock()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: gin.TestMode},
		JWT:    config.JWTConfig{Secret: "test-secret", Issuer: "trustcore"},
	}

	users := repository.NewUserRepository(db)
	contents := repository.NewContentRepository(db)
	queueRepo := repository.NewQueueRepository(db)
	escalations := repository.NewEscalationRepository(db)
	notifications := repository.NewNotificationRepository(db)
	blacklist := repository.NewBlacklistRepository(db)
	notifier := service.NewStoreNotifier(notifications, clock)
	audit := service.NewAuditLogger(repository.NewAuditRepository(db), clock)
	keywords := cache.NewKeywordCache(blacklist, rdb, 0)
	classifier := service.NewContentClassifier(keywords, allowAll{})
	reputation := service.NewReputationEngine(users, contents, notifier)
	dispatcher := service.NewEscalationDispatcher(escalations, users, notifier, service.EscalationOptions{}, clock)

	h := handler.New(handler.Deps{
		Messages:   service.NewMessageService(db, users, repository.NewMessageRepository(db), repository.NewConversationRepository(db), classifier, service.DefaultGuardLimits(), clock),
		Classifier: classifier,
		Publisher:  service.NewPublisher(db, users, contents, queueRepo, classifier, reputation, clock),
		Signals: service.NewSignalService(service.SignalDeps{
			DB: db, Users: users, Contents: contents, Signals: repository.NewSignalRepository(db),
			Queue: queueRepo, Escalations: escalations, Dispatcher: dispatcher, Redis: rdb,
			Limits: service.DefaultSignalThresholds(), Clock: clock,
		}),
		Queue:         service.NewModerationQueue(db, queueRepo, contents, users, audit, clock),
		Admin:         service.NewAdminService(users, contents, blacklist, keywords, reputation, audit, clock),
		Reputation:    reputation,
		Notifications: notifications,
	})
	return &server{t: t, db: db, cfg: cfg, engine: NewRouter(cfg, h, users)}
}

func (s *server) token(actorID string) string {
	s.t.Helper()
	tok, err := middleware.GenerateToken(s.cfg.JWT, actorID, time.Hour)
	require.NoError(s.t, err)
	return tok
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *server) do(method, path, actorID string, body any) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actorID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(actorID))
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestHealthz(t *testing.T) {
	s := newServer(t)
	code, _ := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestAuthRequired(t *testing.T) {
	s := newServer(t)
	code, _ := s.do(http.MethodPost, "/api/v1/messages", "", map[string]string{"recipient_id": "x", "content": "hi"})
	assert.Equal(t, http.StatusUnauthorized, code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSendMessage(t *testing.T) {
	s := newServer(t)
	alice := testutil.CreateUser(t, s.db, "alice")
	bob := testutil.CreateUser(t, s.db, "bob")

	code, _ := s.do(http.MethodPost, "/api/v1/messages", alice.ID, map[string]string{"recipient_id": bob.ID, "content": "hello"})
	assert.Equal(t, http.StatusCreated, code)

	code, env := s.do(http.MethodPost, "/api/v1/messages", alice.ID, map[string]string{"recipient_id": bob.ID, "content": "hello", "website": "http://spam"})
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.JSONEq(t, `{"rule":"honeypot"}`, string(env.Data))

	code, _ = s.do(http.MethodPost, "/api/v1/messages", alice.ID, map[string]string{"recipient_id": "ghost", "content": "hello"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(http.MethodPost, "/api/v1/messages", alice.ID, map[string]string{"recipient_id": bob.ID})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSendMessage_BlacklistRejection(t *testing.T) {
	s := newServer(t)
	admin := testutil.CreateUser(t, s.db, "admin", testutil.Admin())
	alice := testutil.CreateUser(t, s.db, "alice")
	bob := testutil.CreateUser(t, s.db, "bob")

	code, _ := s.do(http.MethodPost, "/api/v1/admin/blacklist", admin.ID, map[string]string{"keyword": "scamlink", "reason": "phishing"})
	require.Equal(t, http.StatusCreated, code)

	code, env := s.do(http.MethodPost, "/api/v1/messages", alice.ID, map[string]string{"recipient_id": bob.ID, "content": "visit SCAMLINK now"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.JSONEq(t, `{"rule":"blacklist","keywords":["scamlink"]}`, string(env.Data))

	var n int64
	require.NoError(t, s.db.Model(&model.Message{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestPublish_BlacklistRejection(t *testing.T) {
	s := newServer(t)
	admin := testutil.CreateUser(t, s.db, "admin", testutil.Admin())
	author := testutil.CreateUser(t, s.db, "author")

	code, _ := s.do(http.MethodPost, "/api/v1/admin/blacklist", admin.ID, map[string]string{"keyword": "Casino", "reason": "gambling"})
	require.Equal(t, http.StatusCreated, code)

	code, env := s.do(http.MethodPost, "/api/v1/contents", author.ID, map[string]string{"kind": "discussion", "body": "best casino bonuses"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, env.Message, "casino")
	assert.JSONEq(t, `{"rule":"blacklist","keywords":["casino"]}`, string(env.Data))

	code, _ = s.do(http.MethodPost, "/api/v1/contents", author.ID, map[string]string{"kind": "discussion", "body": "heat pump sizing"})
	assert.Equal(t, http.StatusCreated, code)

	code, _ = s.do(http.MethodPost, "/api/v1/contents", author.ID, map[string]string{"kind": "poll", "body": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSignals_Validation(t *testing.T) {
	s := newServer(t)
	u := testutil.CreateUser(t, s.db, "u")
	c := testutil.CreateContent(t, s.db, u.ID, model.ContentDiscussion, "post")

	code, _ := s.do(http.MethodPost, "/api/v1/contents/"+c.ID+"/reactions", u.ID, map[string]string{"kind": "angry"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(http.MethodPost, "/api/v1/contents/"+c.ID+"/reactions", u.ID, map[string]string{"kind": "helpful"})
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodPost, "/api/v1/contents/"+c.ID+"/votes", u.ID, map[string]int{"value": 2})
	assert.Equal(t, http.StatusBadRequest, code)
	code, env := s.do(http.MethodPost, "/api/v1/contents/"+c.ID+"/votes", u.ID, map[string]int{"value": -1})
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"vote_state":-1,"score":-1}`, string(env.Data))

	code, env = s.do(http.MethodPost, "/api/v1/contents/"+c.ID+"/raise-hand", u.ID, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"signaled":true,"count":1,"trending":false,"escalated":false}`, string(env.Data))

	code, _ = s.do(http.MethodGet, "/api/v1/contents/trending", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestModerationFlow(t *testing.T) {
	s := newServer(t)
	admin := testutil.CreateUser(t, s.db, "admin", testutil.Admin())
	member := testutil.CreateUser(t, s.db, "member")
	c := testutil.CreateContent(t, s.db, member.ID, model.ContentComment, "questionable")

	code, env := s.do(http.MethodPost, "/api/v1/contents/"+c.ID+"/report", member.ID, map[string]string{"reason": "spam"})
	require.Equal(t, http.StatusOK, code)
	var reported struct {
		EntryID string `json:"entry_id"`
		Created bool   `json:"created"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &reported))
	assert.True(t, reported.Created)

	code, _ = s.do(http.MethodGet, "/api/v1/moderation/queue", member.ID, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(http.MethodGet, "/api/v1/moderation/queue", admin.ID, nil)
	assert.Equal(t, http.StatusOK, code)

	path := "/api/v1/moderation/queue/" + reported.EntryID + "/resolve"
	code, _ = s.do(http.MethodPost, path, admin.ID, map[string]string{"decision": "archive"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(http.MethodPost, path, admin.ID, map[string]string{"decision": "purge", "reason": "spam"})
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(http.MethodPost, path, admin.ID, map[string]string{"decision": "restore"})
	assert.Equal(t, http.StatusConflict, code)

	code, env = s.do(http.MethodGet, "/api/v1/admin/audit", admin.ID, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"purge"`)
}

func TestReputation(t *testing.T) {
	s := newServer(t)
	admin := testutil.CreateUser(t, s.db, "admin", testutil.Admin())
	u := testutil.CreateUser(t, s.db, "u")
	testutil.CreateContent(t, s.db, u.ID, model.ContentReview, "review")

	code, env := s.do(http.MethodGet, "/api/v1/reputation/"+u.ID, "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"score":15`)

	code, _ = s.do(http.MethodGet, "/api/v1/reputation/ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(http.MethodPost, "/api/v1/reputation/"+u.ID+"/recompute", admin.ID, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"new_score":15`)
}
