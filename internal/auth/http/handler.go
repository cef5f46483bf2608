// Package authhttp serves the sign-in, sign-up, password reset and profile pages.
package authhttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pricebook/pricebook/internal/auth"
	"github.com/pricebook/pricebook/internal/platform/httpx"
	"github.com/pricebook/pricebook/internal/shared"
	"github.com/pricebook/pricebook/internal/view"
)

// MaxAvatarBytes bounds avatar uploads.
const MaxAvatarBytes = 2 << 20

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *auth.Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *auth.Service, templates *view.Engine, sessions *shared.SessionManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		validator:      shared.NewValidator(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/signup", h.showSignUp)
	r.Post("/signup", h.handleSignUp)
	r.Get("/forgot", h.showForgot)
	r.Post("/forgot", h.handleForgot)
	r.Get("/reset", h.showReset)
	r.Post("/reset", h.handleReset)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)
		r.Get("/profile", h.showProfile)
		r.Post("/profile", h.handleProfile)
		r.Post("/profile/avatar", h.handleAvatar)
	})
}

type formPage[F any] struct {
	Form   F
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.templates.Page(w, r, http.StatusOK, "pages/login.html", "Sign in", formPage[auth.LoginInput]{})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := auth.LoginInput{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	errs := map[string]string{}
	if err := shared.ValidateStruct(h.validator, form); err != nil {
		errs = shared.FormErrors(err)
	}
	if len(errs) == 0 {
		user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
		switch {
		case err == nil:
			h.signIn(w, r, user, "Welcome back")
			return
		case errors.Is(err, shared.ErrInvalidCredentials):
			errs["general"] = "Invalid email or password"
		default:
			h.logger.Error("authenticate", slog.Any("error", err))
			errs["general"] = err.Error()
		}
	}
	form.Password = ""
	h.templates.Page(w, r, http.StatusBadRequest, "pages/login.html", "Sign in", formPage[auth.LoginInput]{Form: form, Errors: errs})
}

// signIn binds user to a renewed session and redirects to the dashboard.
func (h *Handler) signIn(w http.ResponseWriter, r *http.Request, user *auth.User, greeting string) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	sess.Renew()
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: greeting})
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID, sess.UserID()); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) showSignUp(w http.ResponseWriter, r *http.Request) {
	h.templates.Page(w, r, http.StatusOK, "pages/signup.html", "Create account", formPage[auth.SignUpInput]{})
}

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := auth.SignUpInput{
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
		FullName:        r.PostFormValue("full_name"),
	}
	err := shared.ValidateStruct(h.validator, form)
	if err == nil {
		var user *auth.User
		user, err = h.service.SignUp(r.Context(), form)
		if err == nil {
			h.signIn(w, r, user, "Your account is ready")
			return
		}
	}
	form.Password, form.ConfirmPassword = "", ""
	h.templates.Page(w, r, statusOf(err), "pages/signup.html", "Create account",
		formPage[auth.SignUpInput]{Form: form, Errors: shared.FormErrors(err)})
}

type forgotForm struct {
	Email string `form:"email" validate:"required,email"`
}

func (h *Handler) showForgot(w http.ResponseWriter, r *http.Request) {
	h.templates.Page(w, r, http.StatusOK, "pages/forgot.html", "Reset password", formPage[forgotForm]{})
}

func (h *Handler) handleForgot(w http.ResponseWriter, r *http.Request) {
	form := forgotForm{Email: r.PostFormValue("email")}
	err := shared.ValidateStruct(h.validator, form)
	if err == nil {
		err = h.service.RequestPasswordReset(r.Context(), form.Email)
	}
	if err != nil {
		h.templates.Page(w, r, statusOf(err), "pages/forgot.html", "Reset password",
			formPage[forgotForm]{Form: form, Errors: shared.FormErrors(err)})
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "If the address has an account, a reset link is on its way"})
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) showReset(w http.ResponseWriter, r *http.Request) {
	form := auth.ResetInput{Token: r.URL.Query().Get("token")}
	h.templates.Page(w, r, http.StatusOK, "pages/reset.html", "Choose a new password", formPage[auth.ResetInput]{Form: form})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	form := auth.ResetInput{
		Token:           r.PostFormValue("token"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
	err := shared.ValidateStruct(h.validator, form)
	if err == nil {
		_, err = h.service.ResetPassword(r.Context(), form.Token, form.Password)
	}
	if err != nil {
		form.Password, form.ConfirmPassword = "", ""
		h.templates.Page(w, r, statusOf(err), "pages/reset.html", "Choose a new password",
			formPage[auth.ResetInput]{Form: form, Errors: shared.FormErrors(err)})
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Password changed, sign in with the new one"})
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	current := auth.FromContext(r.Context())
	h.templates.Page(w, r, http.StatusOK, "pages/profile.html", "Profile", formPage[auth.Metadata]{Form: current.Metadata()})
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	current := auth.FromContext(r.Context())
	form := auth.Metadata{
		FullName: r.PostFormValue("full_name"),
		Mobile:   r.PostFormValue("mobile"),
	}
	err := shared.ValidateStruct(h.validator, form)
	if err == nil {
		_, err = h.service.UpdateProfile(r.Context(), current.User.ID, form)
	}
	if err != nil {
		h.templates.Page(w, r, statusOf(err), "pages/profile.html", "Profile",
			formPage[auth.Metadata]{Form: form, Errors: shared.FormErrors(err)})
		return
	}
	h.flashAndBack(w, r, "success", "Profile updated")
}

func (h *Handler) handleAvatar(w http.ResponseWriter, r *http.Request) {
	current := auth.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, MaxAvatarBytes+1<<10)
	if err := r.ParseMultipartForm(MaxAvatarBytes); err != nil {
		h.flashAndBack(w, r, "error", "Avatar must be an image of at most 2 MB")
		return
	}
	file, header, err := r.FormFile("avatar")
	if err != nil {
		h.flashAndBack(w, r, "error", "Choose an image to upload")
		return
	}
	defer func() {
		_ = file.Close()
	}()
	// the body may have been parsed upstream under a larger limit
	if header.Size > MaxAvatarBytes {
		h.flashAndBack(w, r, "error", "Avatar must be an image of at most 2 MB")
		return
	}
	if _, err := h.service.UpdateAvatar(r.Context(), current.User.ID, header.Header.Get("Content-Type"), file); err != nil {
		h.logger.Warn("update avatar", slog.Any("error", err))
		h.flashAndBack(w, r, "error", err.Error())
		return
	}
	h.flashAndBack(w, r, "success", "Avatar updated")
}

func (h *Handler) flashAndBack(w http.ResponseWriter, r *http.Request, kind, msg string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: msg})
	}
	http.Redirect(w, r, "/auth/profile", http.StatusSeeOther)
}

func statusOf(err error) int {
	status, _ := httpx.Status(err)
	return status
}
