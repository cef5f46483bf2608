package auth

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricebook/pricebook/internal/shared"
)

type captureMailer struct {
	to, link string
}

func (m *captureMailer) SendPasswordReset(ctx context.Context, to, link string) error {
	m.to, m.link = to, link
	return nil
}

type memUploader struct {
	names []string
}

func (u *memUploader) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	u.names = append(u.names, name)
	return "/media/" + name, nil
}

func newTestService(t *testing.T) (*Service, *MemoryRepository, *captureMailer, *[]Event) {
	t.Helper()
	repo := NewMemoryRepository()
	mailer := &captureMailer{}
	svc := NewService(repo, Config{Mailer: mailer, Avatars: &memUploader{}, BaseURL: "http://pricebook.test/"})
	var events []Event
	unsubscribe := svc.Subscribe(func(ev Event) { events = append(events, ev) })
	t.Cleanup(unsubscribe)
	return svc, repo, mailer, &events
}

func signUp(t *testing.T, svc *Service) *User {
	t.Helper()
	u, err := svc.SignUp(context.Background(), SignUpInput{Email: "Ana@Example.com", Password: "correct horse", ConfirmPassword: "correct horse", FullName: "Ana Lima"})
	require.NoError(t, err)
	return u
}

func TestSignUpThenAuthenticate(t *testing.T) {
	svc, _, _, events := newTestService(t)
	u := signUp(t, svc)
	assert.Equal(t, "ana@example.com", u.Email)
	require.Len(t, *events, 1)
	assert.Equal(t, SignedUp, (*events)[0].Kind)

	got, err := svc.Authenticate(context.Background(), "ana@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = svc.Authenticate(context.Background(), "ana@example.com", "wrong password")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.SignUp(context.Background(), SignUpInput{Email: "ANA@example.com", Password: "another pass"})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestPasswordResetIsSingleUseAndExpires(t *testing.T) {
	svc, _, mailer, events := newTestService(t)
	signUp(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.RequestPasswordReset(ctx, "ana@example.com"))
	require.Equal(t, "ana@example.com", mailer.to)
	require.True(t, strings.HasPrefix(mailer.link, "http://pricebook.test/auth/reset?token="))
	assert.Equal(t, PasswordRecovery, (*events)[len(*events)-1].Kind)
	token := strings.TrimPrefix(mailer.link, "http://pricebook.test/auth/reset?token=")

	_, err := svc.ResetPassword(ctx, token, "brand new pass")
	require.NoError(t, err)
	_, err = svc.Authenticate(ctx, "ana@example.com", "brand new pass")
	require.NoError(t, err)

	_, err = svc.ResetPassword(ctx, token, "yet another pass")
	require.ErrorIs(t, err, ErrResetToken)

	require.NoError(t, svc.RequestPasswordReset(ctx, "ana@example.com"))
	token = strings.TrimPrefix(mailer.link, "http://pricebook.test/auth/reset?token=")
	svc.now = func() time.Time { return time.Now().Add(ResetTTL + time.Minute) }
	_, err = svc.ResetPassword(ctx, token, "too late pass")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPasswordResetForUnknownEmailIsSilent(t *testing.T) {
	svc, _, mailer, _ := newTestService(t)
	require.NoError(t, svc.RequestPasswordReset(context.Background(), "nobody@example.com"))
	assert.Empty(t, mailer.link)
}

func TestProfileAndAvatarUpdates(t *testing.T) {
	svc, _, _, events := newTestService(t)
	u := signUp(t, svc)
	ctx := context.Background()

	updated, err := svc.UpdateProfile(ctx, u.ID, Metadata{FullName: " Ana Souza ", Mobile: "+55 11 99999-0000"})
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", updated.FullName)
	assert.Equal(t, UserUpdated, (*events)[len(*events)-1].Kind)

	updated, err = svc.UpdateAvatar(ctx, u.ID, "image/png", bytes.NewReader([]byte("\x89PNG")))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(updated.AvatarURL, "/media/avatars/"))

	_, err = svc.UpdateAvatar(ctx, u.ID, "application/pdf", bytes.NewReader(nil))
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, "avatar", shared.FieldOf(err))
}

func TestWatcherLifecycle(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	var seen []EventKind
	w := NewWatcher(svc, nil, func(ev Event) { seen = append(seen, ev.Kind) })
	require.False(t, w.Active())

	w.Init()
	w.Init()
	require.True(t, w.Active())
	u := signUp(t, svc)
	require.NoError(t, svc.RegisterSession(context.Background(), "s1", u, time.Now().Add(time.Hour), "", ""))
	assert.Equal(t, []EventKind{SignedUp, SignedIn}, seen)
	assert.Equal(t, SignedIn, w.Last().Kind)

	w.Close()
	require.False(t, w.Active())
	require.NoError(t, svc.RemoveSession(context.Background(), "s1", u.ID))
	assert.Len(t, seen, 2, "closed watcher must not observe events")
}

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("jwt-secret", time.Minute)
	raw, expires, err := tokens.Issue(&User{ID: 7})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expires, 5*time.Second)

	id, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	_, err = NewTokens("other-secret", time.Minute).Verify(raw)
	require.Error(t, err)

	tokens.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tokens.Verify(raw)
	require.EqualError(t, err, "token expired")
}
