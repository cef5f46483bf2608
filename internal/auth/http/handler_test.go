package authhttp

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricebook/pricebook/internal/auth"
	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/internal/view"
)

type captureMailer struct{ link string }

func (m *captureMailer) SendPasswordReset(_ context.Context, _, link string) error {
	m.link = link
	return nil
}

type memUploader struct{}

func (memUploader) Upload(_ context.Context, name, _ string, r io.Reader) (string, error) {
	_, err := io.Copy(io.Discard, r)
	return "/media/" + name, err
}

type fixture struct {
	svc    *auth.Service
	mailer *captureMailer
	router chi.Router
	sess   *shared.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "pricebook_session", "secret", time.Hour, false)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mailer := &captureMailer{}
	svc := auth.NewService(auth.NewMemoryRepository(), auth.Config{Mailer: mailer, Avatars: memUploader{}, BaseURL: "http://pricebook.test", Logger: logger})
	templates, err := view.NewEngine(view.WithLogger(logger))
	require.NoError(t, err)

	f := &fixture{svc: svc, mailer: mailer, sess: &shared.Session{}}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), f.sess)))
		})
	})
	r.Use(svc.Middleware)
	r.Route("/auth", NewHandler(logger, svc, templates, sessions).MountRoutes)
	f.router = r
	return f
}

func (f *fixture) post(t *testing.T, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) get(target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func (f *fixture) signUp(t *testing.T) {
	t.Helper()
	rr := f.post(t, "/auth/signup", url.Values{
		"email": {"ana@example.com"}, "password": {"correct horse"},
		"confirm_password": {"correct horse"}, "full_name": {"Ana Lima"},
	})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/", rr.Header().Get("Location"))
}

func TestSignUpSignsIn(t *testing.T) {
	f := newFixture(t)
	f.signUp(t)
	assert.NotZero(t, f.sess.UserID())
	msg := f.sess.PopFlash()
	require.NotNil(t, msg)
	assert.Equal(t, "Your account is ready", msg.Message)
}

func TestSignUpRejectsMismatchedPasswords(t *testing.T) {
	f := newFixture(t)
	rr := f.post(t, "/auth/signup", url.Values{
		"email": {"ana@example.com"}, "password": {"correct horse"}, "confirm_password": {"battery staple"},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `value="ana@example.com"`)
	assert.NotContains(t, rr.Body.String(), "correct horse")
	assert.Zero(t, f.sess.UserID())
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.signUp(t)
	f.sess.SetUser("")

	rr := f.post(t, "/auth/login", url.Values{"email": {"ana@example.com"}, "password": {"wrong password"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid email or password")
	assert.Zero(t, f.sess.UserID())

	rr = f.post(t, "/auth/login", url.Values{"email": {"ana@example.com"}, "password": {"correct horse"}})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.NotZero(t, f.sess.UserID())

	rr = f.post(t, "/auth/logout", url.Values{})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/auth/login", rr.Header().Get("Location"))
}

func TestProfileRequiresSignIn(t *testing.T) {
	f := newFixture(t)
	rr := f.get("/auth/profile")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/auth/login", rr.Header().Get("Location"))
}

func TestProfileUpdate(t *testing.T) {
	f := newFixture(t)
	f.signUp(t)
	id := f.sess.UserID()

	rr := f.get("/auth/profile")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `value="Ana Lima"`)

	rr = f.post(t, "/auth/profile", url.Values{"full_name": {"Ana M. Lima"}, "mobile": {"+55 11 5555 0000"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	u, err := f.svc.User(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Ana M. Lima", u.FullName)
	assert.Equal(t, "+55 11 5555 0000", u.Mobile)
}

func TestAvatarUpload(t *testing.T) {
	f := newFixture(t)
	f.signUp(t)
	f.sess.PopFlash()

	upload := func(contentType string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="avatar"; filename="me.png"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, _ = part.Write([]byte("\x89PNG\r\n\x1a\n"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/auth/profile/avatar", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rr := httptest.NewRecorder()
		f.router.ServeHTTP(rr, req)
		return rr
	}

	rr := upload("text/plain")
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "error", f.sess.PopFlash().Kind)

	rr = upload("image/png")
	require.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "Avatar updated", f.sess.PopFlash().Message)
	u, err := f.svc.User(context.Background(), f.sess.UserID())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.AvatarURL, "/media/avatars/"))
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t)
	f.signUp(t)
	f.sess.SetUser("")

	rr := f.post(t, "/auth/forgot", url.Values{"email": {"ana@example.com"}})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.True(t, strings.HasPrefix(f.mailer.link, "http://pricebook.test/auth/reset?token="))
	link, err := url.Parse(f.mailer.link)
	require.NoError(t, err)
	token := link.Query().Get("token")

	rr = f.get("/auth/reset?token=" + url.QueryEscape(token))
	require.Equal(t, http.StatusOK, rr.Code)

	form := url.Values{"token": {token}, "password": {"battery staple"}, "confirm_password": {"battery staple"}}
	rr = f.post(t, "/auth/reset", form)
	require.Equal(t, http.StatusSeeOther, rr.Code)

	rr = f.post(t, "/auth/reset", form)
	assert.NotEqual(t, http.StatusSeeOther, rr.Code, "reset tokens are single use")

	rr = f.post(t, "/auth/login", url.Values{"email": {"ana@example.com"}, "password": {"battery staple"}})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}
