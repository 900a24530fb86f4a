package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rtc-service/internal/directory"
	"rtc-service/internal/events"
	"rtc-service/internal/mocks"
	"rtc-service/internal/models"
	"rtc-service/internal/session"
	"rtc-service/internal/ws"
)

type sessionFixture struct {
	engine   *session.Engine
	profiles *mocks.ProfileDirectoryMock
	handler  *SessionHandler
	broker   *events.Broker
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	store := session.NewStore()
	engine := session.NewEngine(store)
	profiles := new(mocks.ProfileDirectoryMock)
	broker := events.NewBroker(ws.NewHub())
	t.Cleanup(broker.Close)
	handler := NewSessionHandler(engine, store, profiles, broker, nil)
	return &sessionFixture{engine: engine, profiles: profiles, handler: handler, broker: broker}
}

func setupSessionRouter(handler *SessionHandler, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})
	r.POST("/sessions", handler.CreateSession)
	r.GET("/sessions", handler.ListMySessions)
	r.GET("/sessions/:session_id", handler.GetSession)
	r.POST("/sessions/:session_id/join", handler.JoinSession)
	r.POST("/sessions/:session_id/leave", handler.LeaveSession)
	r.POST("/sessions/:session_id/end", handler.EndSession)
	r.PATCH("/sessions/:session_id/flags", handler.UpdateFlags)
	r.POST("/sessions/:session_id/hand", handler.ToggleHand)
	r.POST("/sessions/:session_id/participants/:user_id/promote", handler.PromoteParticipant)
	r.POST("/sessions/:session_id/participants/:user_id/demote", handler.DemoteParticipant)
	r.POST("/sessions/:session_id/requests", handler.RequestJoin)
	r.POST("/sessions/:session_id/requests/:user_id/approve", handler.ApproveRequest)
	r.DELETE("/sessions/:session_id/requests/:user_id", handler.RejectRequest)
	return r
}

func createCall(t *testing.T, engine *session.Engine, owner string) models.Session {
	t.Helper()
	sess, err := engine.Create(session.CreateParams{
		OwnerID:    owner,
		Kind:       models.SessionKindCall,
		MediaMode:  models.MediaModeVideo,
		Visibility: models.VisibilityPublic,
		Capacity:   4,
	})
	require.NoError(t, err)
	return sess
}

func TestCreateSessionSuccess(t *testing.T) {
	f := newSessionFixture(t)
	router := setupSessionRouter(f.handler, "u1")

	body := bytes.NewBufferString(`{"kind":"call","media_mode":"video","visibility":"public","capacity":4}`)
	req := httptest.NewRequest(http.MethodPost, "/sessions", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var sess models.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sess))
	assert.Equal(t, "u1", sess.OwnerID)
	assert.Equal(t, models.SessionStatusWaiting, sess.Status)
	require.Len(t, sess.Participants, 1)
	assert.Equal(t, models.RoleHost, sess.Participants[0].Role)
}

func TestCreateSessionRejectsBadInput(t *testing.T) {
	f := newSessionFixture(t)
	router := setupSessionRouter(f.handler, "u1")

	cases := []string{
		`{"media_mode":"video","visibility":"public","capacity":4}`,
		`{"kind":"call","media_mode":"video","visibility":"public","capacity":1}`,
		`{"kind":"call","media_mode":"video","visibility":"admission","capacity":4}`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestGetSessionResolvesProfiles(t *testing.T) {
	f := newSessionFixture(t)
	router := setupSessionRouter(f.handler, "u1")
	sess := createCall(t, f.engine, "u1")

	f.profiles.On("BulkProfiles", mock.Anything, []string{"u1"}).
		Return([]directory.Profile{{ID: "u1", Name: "Alice"}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Session  models.Session      `json:"session"`
		Profiles []directory.Profile `json:"profiles"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, sess.ID, resp.Session.ID)
	require.Len(t, resp.Profiles, 1)
	assert.Equal(t, "Alice", resp.Profiles[0].Name)
	f.profiles.AssertExpectations(t)
}

func TestGetSessionProfileLookupFailure(t *testing.T) {
	f := newSessionFixture(t)
	router := setupSessionRouter(f.handler, "u1")
	sess := createCall(t, f.engine, "u1")

	f.profiles.On("BulkProfiles", mock.Anything, []string{"u1"}).
		Return(([]directory.Profile)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	f.profiles.AssertExpectations(t)
}

func TestGetSessionHidesPendingRequests(t *testing.T) {
	f := newSessionFixture(t)

	room, err := f.engine.Create(session.CreateParams{
		OwnerID:    "owner",
		Kind:       models.SessionKindRoom,
		MediaMode:  models.MediaModeAudio,
		Visibility: models.VisibilityAdmission,
		Capacity:   5,
	})
	require.NoError(t, err)
	_, err = f.engine.RequestJoin(room.ID, "guest")
	require.NoError(t, err)

	f.profiles.On("BulkProfiles", mock.Anything, []string{"owner"}).
		Return([]directory.Profile{{ID: "owner", Name: "Alice"}}, nil).Twice()

	stranger := setupSessionRouter(f.handler, "stranger")
	req := httptest.NewRequest(http.MethodGet, "/sessions/"+room.ID, nil)
	rec := httptest.NewRecorder()
	stranger.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Session models.Session `json:"session"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Session.JoinRequests)

	owner := setupSessionRouter(f.handler, "owner")
	req = httptest.NewRequest(http.MethodGet, "/sessions/"+room.ID, nil)
	rec = httptest.NewRecorder()
	owner.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Session.JoinRequests, 1)
	assert.Equal(t, "guest", resp.Session.JoinRequests[0].UserID)
}

func TestGetSessionRedactsInviteCode(t *testing.T) {
	f := newSessionFixture(t)

	sess, err := f.engine.Create(session.CreateParams{
		OwnerID:    "owner",
		Kind:       models.SessionKindCall,
		MediaMode:  models.MediaModeVideo,
		Visibility: models.VisibilityPrivate,
		Capacity:   4,
	})
	require.NoError(t, err)
	require.NotEmpty(t, sess.InviteCode)
	_, err = f.engine.Join(sess.ID, "guest", sess.InviteCode)
	require.NoError(t, err)

	f.profiles.On("BulkProfiles", mock.Anything, []string{"owner", "guest"}).
		Return([]directory.Profile{{ID: "owner", Name: "Alice"}, {ID: "guest", Name: "Bob"}}, nil).Twice()

	var resp struct {
		Session models.Session `json:"session"`
	}

	guest := setupSessionRouter(f.handler, "guest")
	req := httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID, nil)
	rec := httptest.NewRecorder()
	guest.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Session.InviteCode)

	owner := setupSessionRouter(f.handler, "owner")
	req = httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID, nil)
	rec = httptest.NewRecorder()
	owner.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, sess.InviteCode, resp.Session.InviteCode)
}

func TestGetSessionNotFound(t *testing.T) {
	f := newSessionFixture(t)
	router := setupSessionRouter(f.handler, "u1")

	req := httptest.NewRequest(http.MethodGet, "/sessions/missing1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJoinSessionWrongInviteCode(t *testing.T) {
	f := newSessionFixture(t)
	router := setupSessionRouter(f.handler, "u2")

	sess, err := f.engine.Create(session.CreateParams{
		OwnerID:    "u1",
		Kind:       models.SessionKindCall,
		MediaMode:  models.MediaModeVideo,
		Visibility: models.VisibilityPrivate,
		Capacity:   4,
	})
	require.NoError(t, err)

	body := bytes.NewBufferString(`{"invite_code":"WRONG1"}`)
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID+"/join", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestJoinSessionFull(t *testing.T) {
	f := newSessionFixture(t)
	router := setupSessionRouter(f.handler, "u4")

	sess, err := f.engine.Create(session.CreateParams{
		OwnerID:    "u1",
		Kind:       models.SessionKindCall,
		MediaMode:  models.MediaModeVideo,
		Visibility: models.VisibilityPublic,
		Capacity:   3,
	})
	require.NoError(t, err)
	_, err = f.engine.Join(sess.ID, "u2", "")
	require.NoError(t, err)
	_, err = f.engine.Join(sess.ID, "u3", "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID+"/join", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestEndSessionForbiddenForPlainParticipant(t *testing.T) {
	f := newSessionFixture(t)
	router := setupSessionRouter(f.handler, "u2")

	sess := createCall(t, f.engine, "u1")
	_, err := f.engine.Join(sess.ID, "u2", "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID+"/end", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateFlags(t *testing.T) {
	f := newSessionFixture(t)
	router := setupSessionRouter(f.handler, "u1")
	sess := createCall(t, f.engine, "u1")

	body := bytes.NewBufferString(`{"muted":true,"screen_sharing":true}`)
	req := httptest.NewRequest(http.MethodPatch, "/sessions/"+sess.ID+"/flags", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.True(t, got.Participants[0].Muted)
	assert.True(t, got.Participants[0].ScreenSharing)
	assert.False(t, got.Participants[0].VideoOff)
}

func TestPromoteOutsideRoom(t *testing.T) {
	f := newSessionFixture(t)
	router := setupSessionRouter(f.handler, "u1")

	sess := createCall(t, f.engine, "u1")
	_, err := f.engine.Join(sess.ID, "u2", "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+sess.ID+"/participants/u2/promote", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdmissionRequestApproveFlow(t *testing.T) {
	f := newSessionFixture(t)

	room, err := f.engine.Create(session.CreateParams{
		OwnerID:    "owner",
		Kind:       models.SessionKindRoom,
		MediaMode:  models.MediaModeAudio,
		Visibility: models.VisibilityAdmission,
		Capacity:   5,
	})
	require.NoError(t, err)

	requester := setupSessionRouter(f.handler, "guest")
	req := httptest.NewRequest(http.MethodPost, "/sessions/"+room.ID+"/requests", nil)
	rec := httptest.NewRecorder()
	requester.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	approver := setupSessionRouter(f.handler, "owner")
	req = httptest.NewRequest(http.MethodPost, "/sessions/"+room.ID+"/requests/guest/approve", nil)
	rec = httptest.NewRecorder()
	approver.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Empty(t, got.JoinRequests)
	require.Len(t, got.Participants, 2)
	assert.Equal(t, models.SessionStatusActive, got.Status)
}

func TestRequesterCancelsOwnRequest(t *testing.T) {
	f := newSessionFixture(t)

	room, err := f.engine.Create(session.CreateParams{
		OwnerID:    "owner",
		Kind:       models.SessionKindRoom,
		MediaMode:  models.MediaModeAudio,
		Visibility: models.VisibilityAdmission,
		Capacity:   5,
	})
	require.NoError(t, err)
	_, err = f.engine.RequestJoin(room.ID, "guest")
	require.NoError(t, err)

	router := setupSessionRouter(f.handler, "guest")
	req := httptest.NewRequest(http.MethodDelete, "/sessions/"+room.ID+"/requests/guest", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Empty(t, got.JoinRequests)
}

func TestApproveUnknownRequestReturns404(t *testing.T) {
	f := newSessionFixture(t)
	router := setupSessionRouter(f.handler, "owner")

	room, err := f.engine.Create(session.CreateParams{
		OwnerID:    "owner",
		Kind:       models.SessionKindRoom,
		MediaMode:  models.MediaModeAudio,
		Visibility: models.VisibilityAdmission,
		Capacity:   5,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+room.ID+"/requests/ghost/approve", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionErrStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, sessionErrStatus(session.ErrCapacityTooSmall))
	assert.Equal(t, http.StatusBadRequest, sessionErrStatus(session.ErrNotRoom))
	assert.Equal(t, http.StatusForbidden, sessionErrStatus(session.ErrForbidden))
	assert.Equal(t, http.StatusConflict, sessionErrStatus(session.ErrSessionFull))
	assert.Equal(t, http.StatusNotFound, sessionErrStatus(session.ErrSessionNotFound))
	assert.Equal(t, http.StatusInternalServerError, sessionErrStatus(assert.AnError))
}

func TestListMySessions(t *testing.T) {
	f := newSessionFixture(t)
	router := setupSessionRouter(f.handler, "u1")

	first := createCall(t, f.engine, "u1")
	createCall(t, f.engine, "someone-else")

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Sessions []models.Session `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Sessions, 1)
	assert.Equal(t, first.ID, resp.Sessions[0].ID)
}
