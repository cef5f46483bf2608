package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pricebook/pricebook/internal/shared"
)

// ResetTTL bounds the lifetime of a password reset token.
const ResetTTL = time.Hour

// ErrResetToken is returned for unknown, expired or already used reset tokens.
var ErrResetToken = shared.Errorf(shared.ErrValidation, "this reset link is invalid or has expired")

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}

// Uploader stores avatar images and returns their public URL.
type Uploader interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error)
}

// Config wires the optional collaborators of Service.
type Config struct {
	Mailer  Mailer
	Avatars Uploader
	// BaseURL prefixes the reset link, e.g. https://pricebook.example.com.
	BaseURL string
	Logger  *slog.Logger
}

// Service wraps authentication business rules.
type Service struct {
	repo    Repository
	mailer  Mailer
	avatars Uploader
	baseURL string
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

// NewService constructs a new Service.
func NewService(repo Repository, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		mailer:  cfg.Mailer,
		avatars: cfg.Avatars,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
		now:     time.Now,
		subs:    make(map[int]func(Event)),
	}
}

// Subscribe registers fn for session change events and returns its unsubscribe func.
func (s *Service) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Service) publish(kind EventKind, u *User) {
	ev := Event{Kind: kind, At: s.now().UTC()}
	if u != nil {
		ev.UserID, ev.Email = u.ID, u.Email
	}
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrTransport) {
			return nil, err
		}
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// User loads an account by id.
func (s *Service) User(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// RegisterSession persists the session metadata and announces the sign in.
func (s *Service) RegisterSession(ctx context.Context, id string, user *User, expiresAt time.Time, ip, ua string) error {
	defer s.publish(SignedIn, user)
	return s.repo.CreateSession(ctx, id, user.ID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record and announces the sign out.
func (s *Service) RemoveSession(ctx context.Context, id string, userID int64) error {
	defer s.publish(SignedOut, &User{ID: userID})
	return s.repo.DeleteSession(ctx, id)
}

// SignUp creates an active account.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(in.FullName),
		IsActive:     true,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.publish(SignedUp, u)
	return u, nil
}

// RequestPasswordReset mails a single-use reset link. Unknown emails succeed
// silently so the form does not reveal which accounts exist.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Info("password reset for unknown email")
			return nil
		}
		return err
	}
	token, hash, err := newResetToken()
	if err != nil {
		return err
	}
	if err := s.repo.CreateReset(ctx, hash, user.ID, s.now().Add(ResetTTL)); err != nil {
		return err
	}
	if s.mailer != nil {
		link := s.baseURL + "/auth/reset?token=" + token
		if err := s.mailer.SendPasswordReset(ctx, user.Email, link); err != nil {
			return shared.Wrap(shared.ErrTransport, err)
		}
	}
	s.publish(PasswordRecovery, user)
	return nil
}

// ResetPassword consumes the token and sets a new password.
func (s *Service) ResetPassword(ctx context.Context, token, password string) (*User, error) {
	userID, err := s.repo.ConsumeReset(ctx, hashToken(token), s.now())
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return nil, err
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.publish(UserUpdated, user)
	return user, nil
}

// UpdateProfile replaces the metadata bag of the user.
func (s *Service) UpdateProfile(ctx context.Context, id int64, meta Metadata) (*User, error) {
	meta.FullName = strings.TrimSpace(meta.FullName)
	meta.Mobile = strings.TrimSpace(meta.Mobile)
	if err := s.repo.UpdateProfile(ctx, id, meta); err != nil {
		return nil, err
	}
	return s.reload(ctx, id)
}

var avatarTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// UpdateAvatar uploads the image and stores its public URL on the profile.
func (s *Service) UpdateAvatar(ctx context.Context, id int64, contentType string, r io.Reader) (*User, error) {
	if s.avatars == nil {
		return nil, shared.Errorf(shared.ErrTransport, "avatar storage is not configured")
	}
	ext, ok := avatarTypes[contentType]
	if !ok {
		return nil, shared.FieldError("avatar", "avatar must be a PNG, JPEG, GIF or WebP image")
	}
	name := path.Join("avatars", fmt.Sprintf("%d-%d%s", id, s.now().Unix(), ext))
	url, err := s.avatars.Upload(ctx, name, contentType, r)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateAvatar(ctx, id, url); err != nil {
		return nil, err
	}
	return s.reload(ctx, id)
}

func (s *Service) reload(ctx context.Context, id int64) (*User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(UserUpdated, user)
	return user, nil
}

func newResetToken() (token, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("reset token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
