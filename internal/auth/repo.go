package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pricebook/pricebook/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	UpdateProfile(ctx context.Context, id int64, meta Metadata) error
	UpdateAvatar(ctx context.Context, id int64, url string) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
	CreateReset(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error
	// ConsumeReset marks an unused, unexpired token as used and returns its user.
	ConsumeReset(ctx context.Context, tokenHash string, now time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, email, password_hash, full_name, mobile, avatar_url, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var (
		u                        User
		fullName, mobile, avatar pgtype.Text
		createdAt, updatedAt     pgtype.Timestamptz
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &fullName, &mobile, &avatar, &u.IsActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, shared.Wrap(shared.ErrTransport, err)
	}
	u.FullName = fullName.String
	u.Mobile = mobile.String
	u.AvatarURL = avatar.String
	u.CreatedAt = createdAt.Time
	u.UpdatedAt = updatedAt.Time
	return &u, nil
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

// FindByID fetches a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// CreateUser inserts u and fills its id and timestamps.
func (r *PGRepository) CreateUser(ctx context.Context, u *User) error {
	err := r.pool.QueryRow(ctx, `
INSERT INTO users (email, password_hash, full_name, mobile, avatar_url, is_active, created_at, updated_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6, NOW(), NOW())
RETURNING id, created_at, updated_at`,
		strings.ToLower(u.Email), u.PasswordHash, u.FullName, u.Mobile, u.AvatarURL, u.IsActive,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.Errorf(shared.ErrConflict, "an account with email %s already exists", u.Email)
		}
		return shared.Wrap(shared.ErrTransport, err)
	}
	return nil
}

// UpdateProfile replaces the metadata bag.
func (r *PGRepository) UpdateProfile(ctx context.Context, id int64, meta Metadata) error {
	return r.exec(ctx, `UPDATE users SET full_name = NULLIF($2, ''), mobile = NULLIF($3, ''), updated_at = NOW() WHERE id = $1`, id, meta.FullName, meta.Mobile)
}

// UpdateAvatar stores the public avatar URL.
func (r *PGRepository) UpdateAvatar(ctx context.Context, id int64, url string) error {
	return r.exec(ctx, `UPDATE users SET avatar_url = $2, updated_at = NOW() WHERE id = $1`, id, url)
}

// UpdatePassword stores a new bcrypt hash.
func (r *PGRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return r.exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
}

func (r *PGRepository) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return shared.Wrap(shared.ErrTransport, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreateSession persists a new login session in the database for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO user_sessions (id, user_id, created_at, expires_at, ip, ua) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, userID,
		pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true},
		pgtype.Timestamptz{Time: expiresAt.UTC(), Valid: true},
		pgtype.Text{String: ip, Valid: ip != ""},
		pgtype.Text{String: ua, Valid: ua != ""},
	)
	return err
}

// DeleteSession removes a session record from the database.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE id = $1`, id)
	return err
}

// CreateReset stores the hash of a reset token.
func (r *PGRepository) CreateReset(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO password_resets (token_hash, user_id, expires_at) VALUES ($1, $2, $3)`, tokenHash, userID, expiresAt.UTC())
	if err != nil {
		return shared.Wrap(shared.ErrTransport, err)
	}
	return nil
}

// ConsumeReset implements Repository.
func (r *PGRepository) ConsumeReset(ctx context.Context, tokenHash string, now time.Time) (int64, error) {
	var userID int64
	err := r.pool.QueryRow(ctx, `
UPDATE password_resets SET used_at = $2
WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
RETURNING user_id`, tokenHash, now.UTC()).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrResetToken
		}
		return 0, shared.Wrap(shared.ErrTransport, err)
	}
	return userID, nil
}

// MemoryRepository keeps accounts in process for ephemeral runs and tests.
type MemoryRepository struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]*User
	sessions map[string]int64
	resets   map[string]memoryReset
}

type memoryReset struct {
	userID    int64
	expiresAt time.Time
	used      bool
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    make(map[int64]*User),
		sessions: make(map[string]int64),
		resets:   make(map[string]memoryReset),
	}
}

func (m *MemoryRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *MemoryRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryRepository) CreateUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return shared.Errorf(shared.ErrConflict, "an account with email %s already exists", u.Email)
		}
	}
	m.nextID++
	now := time.Now().UTC()
	u.ID, u.CreatedAt, u.UpdatedAt = m.nextID, now, now
	u.Email = strings.ToLower(u.Email)
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryRepository) update(id int64, fn func(*User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepository) UpdateProfile(ctx context.Context, id int64, meta Metadata) error {
	return m.update(id, func(u *User) { u.FullName, u.Mobile = meta.FullName, meta.Mobile })
}

func (m *MemoryRepository) UpdateAvatar(ctx context.Context, id int64, url string) error {
	return m.update(id, func(u *User) { u.AvatarURL = url })
}

func (m *MemoryRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return m.update(id, func(u *User) { u.PasswordHash = hash })
}

func (m *MemoryRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = userID
	return nil
}

func (m *MemoryRepository) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryRepository) CreateReset(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[tokenHash] = memoryReset{userID: userID, expiresAt: expiresAt}
	return nil
}

func (m *MemoryRepository) ConsumeReset(ctx context.Context, tokenHash string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resets[tokenHash]
	if !ok || r.used || !now.Before(r.expiresAt) {
		return 0, ErrResetToken
	}
	r.used = true
	m.resets[tokenHash] = r
	return r.userID, nil
}

var (
	_ Repository = (*PGRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
