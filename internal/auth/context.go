package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pricebook/pricebook/internal/platform/httpx"
	"github.com/pricebook/pricebook/internal/shared"
)

// Context is the per-request view of the signed-in user.
type Context struct {
	User *User
}

// Authenticated reports whether a user is signed in.
func (c Context) Authenticated() bool {
	return c.User != nil
}

// Metadata returns the profile bag of the signed-in user.
func (c Context) Metadata() Metadata {
	return c.User.Metadata()
}

type contextKey struct{}

// WithContext attaches c to ctx together with the acting user id.
func WithContext(ctx context.Context, c Context) context.Context {
	ctx = context.WithValue(ctx, contextKey{}, c)
	if c.User != nil {
		ctx = shared.ContextWithActor(ctx, c.User.ID)
	}
	return ctx
}

// FromContext returns the auth context resolved for the request.
func FromContext(ctx context.Context) Context {
	c, _ := ctx.Value(contextKey{}).(Context)
	return c
}

// Middleware resolves the session user into an auth Context. Sessions pointing
// at missing or disabled accounts are signed out.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.UserID() == 0 {
			next.ServeHTTP(w, r)
			return
		}
		user, err := s.repo.FindByID(r.Context(), sess.UserID())
		switch {
		case err == nil && user.IsActive:
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), Context{User: user})))
			return
		case err != nil && !errors.Is(err, shared.ErrNotFound):
			s.logger.Warn("resolve session user", slog.Any("error", err))
		default:
			sess.SetUser("")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser redirects anonymous visitors to the sign-in page.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !FromContext(r.Context()).Authenticated() {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerMiddleware authenticates API requests carrying an access token.
func (s *Service) BearerMiddleware(tokens *Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			userID, err := tokens.Verify(raw)
			if err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
				return
			}
			user, err := s.repo.FindByID(r.Context(), userID)
			if err != nil || !user.IsActive {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), Context{User: user})))
		})
	}
}
