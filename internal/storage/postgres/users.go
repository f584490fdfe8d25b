package postgres

import (
	"context"
	"errors"
	"fmt"

	"yoyaku/internal/domain"
	"yoyaku/internal/models"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id, name, email, password, created_at`

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	const query = `INSERT INTO users (name, email, password) VALUES ($1, $2, $3) RETURNING id, created_at`
	err := s.conn(ctx).QueryRow(ctx, query, user.Name, user.Email, user.PasswordHash).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		switch uniqueConstraint(err) {
		case "users_email_key":
			return domain.ErrEmailTaken
		case "users_name_key":
			return domain.ErrNameTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *Store) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE name = $1`, name)
}

func (s *Store) queryUser(ctx context.Context, query string, arg any) (*models.User, error) {
	var u models.User
	err := s.conn(ctx).QueryRow(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *Store) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.conn(ctx).Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("get all users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
