// Package store owns the persistence and encryption boundary around
// biometric templates and appended attendance rows. Templates are
// encrypted with NaCl secretbox before they reach Postgres; nothing
// outside this package ever sees ciphertext or key material. Every write
// is a short single-statement transaction, so the read-only dashboard
// process sharing the database never observes partial rows.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/facewatch/facewatch/pkg/logging"
)

// StatusPresent is the only attendance status produced by the core.
const StatusPresent = "present"

// Security event types.
const (
	EventUnrecognizedFace  = "unrecognized_face"
	EventLowConfidence     = "low_confidence"
	EventSpoofSuspected    = "spoof_suspected"
	EventTemplateIntegrity = "template_integrity"
)

// Security event severities.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// User is an enrolled identity.
type User struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// UserTemplate pairs a user with their decrypted face template.
type UserTemplate struct {
	User     User
	Template FaceTemplate
}

// AttendanceRecord is one appended attendance row.
type AttendanceRecord struct {
	ID        string
	UserID    string
	Timestamp time.Time
	Status    string
}

// SecurityEvent is one appended security event row.
type SecurityEvent struct {
	EventType   string
	Description string
	Severity    string
}

// ErrDuplicateUser is returned when enrolling a name that already exists.
// It is non-fatal and surfaced to the operator.
var ErrDuplicateUser = errors.New("user name already enrolled")

// ErrDatabaseUnavailable is returned when the database cannot be reached
// at startup. This is fatal.
var ErrDatabaseUnavailable = errors.New("database unavailable")

// Config holds the store settings.
type Config struct {
	DatabaseURL  string
	KeyFile      string
	MaxOpenConns int
	MaxIdleConns int
}

// Store is the persistence layer for users, attendance and security events.
type Store struct {
	db     *sql.DB
	cipher cipher
}

// Open loads the encryption key, connects to Postgres and applies pending
// migrations. Key or database failures here are fatal to the caller.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	key, err := LoadOrCreateKey(cfg.KeyFile)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrDatabaseUnavailable, err)
	}

	s := &Store{db: db, cipher: cipher{key: key}}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateUser serializes and encrypts the template and inserts a new user
// row. A name collision returns ErrDuplicateUser and writes nothing.
func (s *Store) CreateUser(ctx context.Context, name string, tmpl FaceTemplate) (User, error) {
	if name == "" {
		return User{}, errors.New("user name must not be empty")
	}

	plaintext, err := marshalTemplate(tmpl)
	if err != nil {
		return User{}, err
	}
	blob, err := s.cipher.encrypt(plaintext)
	if err != nil {
		return User{}, fmt.Errorf("failed to encrypt template: %w", err)
	}

	user := User{ID: uuid.NewString(), Name: name}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, name, encrypted_template)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, user.ID, user.Name, blob)
	if err := row.Scan(&user.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicateUser
		}
		return User{}, fmt.Errorf("failed to insert user: %w", err)
	}

	logging.Component("store").Infof("enrolled user %q (%s), %d samples", name, user.ID, len(tmpl.Samples))
	return user, nil
}

// UserExists reports whether a name is already enrolled.
func (s *Store) UserExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM users WHERE name = $1)", name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// ListUsers returns all enrolled users without their templates.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM users ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// LoadTemplates decrypts and deserializes every stored template. A user
// whose blob fails to decrypt is excluded from the result and recorded as
// a high-severity integrity event; the rest of the system keeps running.
func (s *Store) LoadTemplates(ctx context.Context) ([]UserTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, encrypted_template, created_at FROM users")
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	defer rows.Close()

	var out []UserTemplate
	var corrupted []User
	for rows.Next() {
		var u User
		var blob []byte
		if err := rows.Scan(&u.ID, &u.Name, &blob, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user template: %w", err)
		}

		plaintext, err := s.cipher.decrypt(blob)
		if err != nil {
			corrupted = append(corrupted, u)
			continue
		}
		tmpl, err := unmarshalTemplate(plaintext)
		if err != nil {
			corrupted = append(corrupted, u)
			continue
		}

		out = append(out, UserTemplate{User: u, Template: tmpl})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, u := range corrupted {
		logging.Component("store").Errorf("template for user %q (%s) failed integrity check, excluded from training", u.Name, u.ID)
		if err := s.InsertSecurityEvent(ctx, SecurityEvent{
			EventType:   EventTemplateIntegrity,
			Description: fmt.Sprintf("template for user %s could not be decrypted", u.Name),
			Severity:    SeverityHigh,
		}); err != nil {
			logging.Component("store").WithError(err).Warn("failed to record integrity event")
		}
	}

	return out, nil
}

// InsertAttendance appends one attendance row for the user. Rows are never
// updated or removed by the core.
func (s *Store) InsertAttendance(ctx context.Context, userID string) (AttendanceRecord, error) {
	rec := AttendanceRecord{
		ID:     uuid.NewString(),
		UserID: userID,
		Status: StatusPresent,
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, user_id, status)
		VALUES ($1, $2, $3)
		RETURNING timestamp
	`, rec.ID, rec.UserID, rec.Status)
	if err := row.Scan(&rec.Timestamp); err != nil {
		return AttendanceRecord{}, fmt.Errorf("failed to insert attendance record: %w", err)
	}
	return rec, nil
}

// InsertSecurityEvent appends one security event row.
func (s *Store) InsertSecurityEvent(ctx context.Context, ev SecurityEvent) error {
	if ev.Severity == "" {
		ev.Severity = SeverityMedium
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO security_events (id, event_type, description, severity)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), ev.EventType, ev.Description, ev.Severity)
	if err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
