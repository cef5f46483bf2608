// Package api serves the JSON API under /api/v1.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/pricebook/pricebook/internal/auth"
	"github.com/pricebook/pricebook/internal/catalog/codes"
	"github.com/pricebook/pricebook/internal/catalog/mutation"
	"github.com/pricebook/pricebook/internal/catalog/products"
	"github.com/pricebook/pricebook/internal/platform/httpx"
	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/internal/viewcache"
)

const maxBodyBytes = 1 << 20

// Handler serves the JSON endpoints.
type Handler struct {
	logger       *slog.Logger
	auth         *auth.Service
	tokens       *auth.Tokens
	products     *products.Service
	allocator    *codes.Allocator
	coordinator  *mutation.Coordinator
	cache        *viewcache.Cache
	validator    *validator.Validate
	idempotency  *shared.IdempotencyStore
	tokensPerMin int
}

// Config groups the collaborators of a Handler.
type Config struct {
	Logger      *slog.Logger
	Auth        *auth.Service
	Tokens      *auth.Tokens
	Products    *products.Service
	Allocator   *codes.Allocator
	Coordinator *mutation.Coordinator
	Cache       *viewcache.Cache
	// Idempotency, when set, rejects writes replaying a seen Idempotency-Key header.
	Idempotency *shared.IdempotencyStore
	// TokenRequestsPerMinute limits POST /auth/token per client IP.
	TokenRequestsPerMinute int
}

// NewHandler constructs the API handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	perMin := cfg.TokenRequestsPerMinute
	if perMin <= 0 {
		perMin = 10
	}
	return &Handler{
		logger:       logger,
		auth:         cfg.Auth,
		tokens:       cfg.Tokens,
		products:     cfg.Products,
		allocator:    cfg.Allocator,
		coordinator:  cfg.Coordinator,
		cache:        cfg.Cache,
		validator:    shared.NewValidator(),
		idempotency:  cfg.Idempotency,
		tokensPerMin: perMin,
	}
}

// MountRoutes registers the API, usually under /api/v1.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(httprate.LimitByIP(h.tokensPerMin, time.Minute)).Post("/auth/token", h.issueToken)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.BearerMiddleware(h.tokens))
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Post("/", h.createProduct)
			r.Get("/next-code", h.nextCode)
			r.Route("/{code}", func(r chi.Router) {
				r.Get("/", h.getProduct)
				r.Put("/", h.updateProduct)
				r.Delete("/", h.deleteProduct)
				r.Get("/prices", h.listPrices)
				r.Post("/prices", h.addPrice)
				r.Get("/prices/current", h.currentPrice)
				r.Put("/prices/{date}", h.editPrice)
				r.Delete("/prices/{date}", h.deletePrice)
			})
		})
	})
}

// envelope is the body of every successful response.
type envelope struct {
	Data          any                     `json:"data,omitempty"`
	Notifications []mutation.Notification `json:"notifications,omitempty"`
}

type tokenRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (h *Handler) issueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := shared.ValidateStruct(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	token, expires, err := h.tokens.Issue(user)
	if err != nil {
		h.logger.Error("issue token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("api token issued", slog.Int64("user_id", user.ID))
	httpx.JSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "Bearer", ExpiresAt: expires})
}

// decode reads a JSON body into target, answering 400 on malformed input.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, shared.Errorf(shared.ErrValidation, "malformed JSON body: %v", err))
		return false
	}
	return true
}

// write runs fn with a collector as notifier and answers with its result.
func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, fn func(ctx context.Context) (any, error)) {
	key := r.Header.Get("Idempotency-Key")
	scope := fmt.Sprintf("api:%d", shared.ActorFromContext(r.Context()))
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, scope); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				err = shared.Errorf(shared.ErrConflict, "request with Idempotency-Key %q was already processed", key)
			}
			httpx.RespondError(w, err)
			return
		}
	}
	collector := &mutation.Collector{}
	data, err := fn(mutation.ContextWithNotifier(r.Context(), collector))
	if err != nil {
		if key != "" && h.idempotency != nil {
			if derr := h.idempotency.Delete(r.Context(), key, scope); derr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		httpx.RespondError(w, err)
		return
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	httpx.JSON(w, status, envelope{Data: data, Notifications: collector.Notifications()})
}

func respond(w http.ResponseWriter, data any, err error) {
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, envelope{Data: data})
}
