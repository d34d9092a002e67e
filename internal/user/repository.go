package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("user not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, u *User) (*User, error) {
	u.ID = uuid.NewString()
	query := `INSERT INTO users (id, name, email, password, role, avatar)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING last_seen`

	err := r.db.QueryRowContext(ctx, query, u.ID, u.Name, u.Email, u.Password, u.Role, u.Avatar).Scan(&u.LastSeen)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	u := &User{}
	query := `SELECT id, name, email, password, role, avatar, online, last_seen FROM users WHERE email = $1`

	err := r.db.QueryRowContext(ctx, query, email).
		Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Role, &u.Avatar, &u.Online, &u.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	u := &User{}
	query := `SELECT id, name, email, password, role, avatar, online, last_seen FROM users WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Role, &u.Avatar, &u.Online, &u.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// Search matches name, email or role, excluding the requesting user.
func (r *Repository) Search(ctx context.Context, selfID, term string) ([]User, error) {
	q := `SELECT id, name, email, role, avatar, online, last_seen FROM users
		WHERE id <> $1 AND (name ILIKE $2 OR email ILIKE $2 OR role ILIKE $2)
		ORDER BY name LIMIT 20`
	rows, err := r.db.QueryContext(ctx, q, selfID, "%"+term+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// All returns every user except the requesting one.
func (r *Repository) All(ctx context.Context, selfID string) ([]User, error) {
	q := `SELECT id, name, email, role, avatar, online, last_seen FROM users
		WHERE id <> $1 ORDER BY name`
	rows, err := r.db.QueryContext(ctx, q, selfID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (r *Repository) SetStatus(ctx context.Context, id string, online bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET online = $2, last_seen = now() WHERE id = $1`, id, online)
	return err
}

func scanUsers(rows *sql.Rows) ([]User, error) {
	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Avatar, &u.Online, &u.LastSeen); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
