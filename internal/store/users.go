package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fossawork-backend/models"
)

func (s *Store) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users(username, name, email, password_hash, portal_username, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?)`,
		u.Username, nullStr(u.Name), nullStr(u.Email), u.PasswordHash,
		nullStr(u.PortalUsername), timeStr(now), timeStr(now),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, name, email, password_hash, portal_username, created_at, updated_at
		 FROM users WHERE username = ?`, username))
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, name, email, password_hash, portal_username, created_at, updated_at
		 FROM users WHERE id = ?`, id))
}

func (s *Store) scanUser(row *sql.Row) (*models.User, error) {
	var (
		u          models.User
		name       sql.NullString
		email      sql.NullString
		portalUser sql.NullString
		createdAt  string
		updatedAt  string
	)
	err := row.Scan(&u.ID, &u.Username, &name, &email, &u.PasswordHash, &portalUser, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Name = name.String
	u.Email = email.String
	u.PortalUsername = portalUser.String
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		u.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		u.UpdatedAt = t
	}
	return &u, nil
}

// SetPortalCredentials stores the sealed portal password blob alongside
// the portal username. The blob is opaque to the store.
func (s *Store) SetPortalCredentials(ctx context.Context, userID int64, portalUsername string, sealed []byte) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET portal_username = ?, portal_secret = ?, updated_at = ? WHERE id = ?`,
		portalUsername, sealed, timeStr(time.Now()), userID,
	)
	return err
}

// GetPortalCredentials returns the portal username and the sealed
// password blob for a user.
func (s *Store) GetPortalCredentials(ctx context.Context, userID int64) (string, []byte, error) {
	var (
		username sql.NullString
		sealed   []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT portal_username, portal_secret FROM users WHERE id = ?`, userID,
	).Scan(&username, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, err
	}
	return username.String, sealed, nil
}
