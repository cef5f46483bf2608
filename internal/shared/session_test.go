package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestSessions(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewSessionManager(client, "pb_session", "secret", time.Hour, false), mr
}

func roundTrip(t *testing.T, sm *SessionManager, cookie *http.Cookie, fn func(sess *Session)) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	fn(sess)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rec, req, sess))
	for _, c := range rec.Result().Cookies() {
		if c.Name == sm.CookieName() {
			return c
		}
	}
	return cookie
}

func TestFlashSurvivesRedirect(t *testing.T) {
	sm, _ := newTestSessions(t)

	cookie := roundTrip(t, sm, nil, func(sess *Session) {
		sess.AddFlash(FlashMessage{Kind: "success", Message: "Product AD0001 saved"})
	})
	require.NotNil(t, cookie)

	var got *FlashMessage
	cookie = roundTrip(t, sm, cookie, func(sess *Session) {
		got = sess.PopFlash()
	})
	require.NotNil(t, got)
	require.Equal(t, "Product AD0001 saved", got.Message)

	roundTrip(t, sm, cookie, func(sess *Session) {
		require.Nil(t, sess.PopFlash(), "a popped flash is shown once")
	})
}

func TestUnknownSessionCookieIsNotAdopted(t *testing.T) {
	sm, _ := newTestSessions(t)
	forged := &http.Cookie{Name: sm.CookieName(), Value: "attacker-chosen"}
	cookie := roundTrip(t, sm, forged, func(sess *Session) {
		require.NotEqual(t, "attacker-chosen", sess.ID)
	})
	require.NotEqual(t, "attacker-chosen", cookie.Value)
}

func TestRenewDropsPreviousRecord(t *testing.T) {
	sm, mr := newTestSessions(t)
	cookie := roundTrip(t, sm, nil, func(sess *Session) { sess.Set("k", "v") })
	old := cookie.Value
	require.True(t, mr.Exists(sm.redisKey(old)))

	cookie = roundTrip(t, sm, cookie, func(sess *Session) {
		sess.SetUser("42")
		sess.Renew()
	})
	require.NotEqual(t, old, cookie.Value)
	require.False(t, mr.Exists(sm.redisKey(old)))

	roundTrip(t, sm, cookie, func(sess *Session) {
		require.Equal(t, int64(42), sess.UserID())
		require.Equal(t, "v", sess.Get("k"))
	})
}
