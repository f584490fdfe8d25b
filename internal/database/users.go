package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"yoyaku/internal/domain"
	"yoyaku/internal/models"
)

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (name, email, password, created_at) VALUES (?, ?, ?, ?)`
	now := time.Now()
	result, err := db.conn(ctx).ExecContext(ctx, query, user.Name, user.Email, user.PasswordHash, now)
	if err != nil {
		if isUniqueViolation(err) {
			if uniqueColumn(err) == "email" {
				return domain.ErrEmailTaken
			}
			return domain.ErrNameTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	user.CreatedAt = now
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return db.queryUser(ctx, `SELECT id, name, email, password, created_at FROM users WHERE id = ?`, id)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.queryUser(ctx, `SELECT id, name, email, password, created_at FROM users WHERE email = ?`, email)
}

func (db *DB) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	return db.queryUser(ctx, `SELECT id, name, email, password, created_at FROM users WHERE name = ?`, name)
}

func (db *DB) queryUser(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	err := db.conn(ctx).QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (db *DB) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	query := `SELECT id, name, email, password, created_at FROM users ORDER BY id`
	rows, err := db.conn(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get all users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// DeleteUser removes the user; reservations and posts cascade.
func (db *DB) DeleteUser(ctx context.Context, id int64) error {
	result, err := db.conn(ctx).ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
