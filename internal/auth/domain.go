package auth

import "time"

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	FullName     string
	Mobile       string
	AvatarURL    string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Metadata is the editable profile bag of a user.
type Metadata struct {
	FullName string `form:"full_name" json:"full_name" validate:"max=120"`
	Mobile   string `form:"mobile" json:"mobile" validate:"omitempty,max=32"`
}

// Metadata returns the profile bag of the user.
func (u *User) Metadata() Metadata {
	if u == nil {
		return Metadata{}
	}
	return Metadata{FullName: u.FullName, Mobile: u.Mobile}
}

// DisplayName prefers the full name over the email.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}

// EventKind names a session change.
type EventKind string

const (
	SignedIn         EventKind = "signed_in"
	SignedOut        EventKind = "signed_out"
	SignedUp         EventKind = "signed_up"
	PasswordRecovery EventKind = "password_recovery"
	UserUpdated      EventKind = "user_updated"
)

// Event is delivered to subscribers on every session change.
type Event struct {
	Kind   EventKind
	UserID int64
	Email  string
	At     time.Time
}

// SignUpInput carries the sign-up form.
type SignUpInput struct {
	Email           string `form:"email" json:"email" validate:"required,email,max=254"`
	Password        string `form:"password" json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password" validate:"required,eqfield=Password"`
	FullName        string `form:"full_name" json:"full_name" validate:"max=120"`
}

// LoginInput carries the sign-in form.
type LoginInput struct {
	Email    string `form:"email" json:"email" validate:"required,email"`
	Password string `form:"password" json:"password" validate:"required,min=8"`
}

// ResetInput carries the new password of a reset.
type ResetInput struct {
	Token           string `form:"token" json:"token" validate:"required"`
	Password        string `form:"password" json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password" validate:"required,eqfield=Password"`
}
