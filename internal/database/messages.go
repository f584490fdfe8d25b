package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"yoyaku/internal/models"
)

func (db *DB) CreateMessage(ctx context.Context, msg *models.Message) error {
	return db.insertPost(ctx, "messages", msg)
}

// ListMessages returns top-level posts, newest first.
func (db *DB) ListMessages(ctx context.Context) ([]*models.Message, error) {
	return db.listPosts(ctx, "messages")
}

func (db *DB) CreateNotice(ctx context.Context, notice *models.Notice) error {
	return db.insertPost(ctx, "mail_messages", (*models.Message)(notice))
}

func (db *DB) ListNotices(ctx context.Context) ([]*models.Notice, error) {
	posts, err := db.listPosts(ctx, "mail_messages")
	if err != nil {
		return nil, err
	}
	notices := make([]*models.Notice, 0, len(posts))
	for _, p := range posts {
		notices = append(notices, (*models.Notice)(p))
	}
	return notices, nil
}

func (db *DB) insertPost(ctx context.Context, table string, msg *models.Message) error {
	query := fmt.Sprintf(`INSERT INTO %s (user_id, content, reply_to, pub_date) VALUES (?, ?, ?, ?)`, table)
	if msg.PubDate.IsZero() {
		msg.PubDate = time.Now()
	}
	result, err := db.conn(ctx).ExecContext(ctx, query, msg.UserID, msg.Content, msg.ReplyTo, msg.PubDate)
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	msg.ID = id
	return nil
}

func (db *DB) listPosts(ctx context.Context, table string) ([]*models.Message, error) {
	query := fmt.Sprintf(`SELECT m.id, m.user_id, u.name, m.content, m.reply_to, m.pub_date
              FROM %s m JOIN users u ON u.id = m.user_id
              WHERE m.reply_to IS NULL
              ORDER BY m.pub_date DESC, m.id DESC`, table)
	rows, err := db.conn(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer rows.Close()

	var posts []*models.Message
	for rows.Next() {
		m := &models.Message{}
		var replyTo sql.NullInt64
		if err := rows.Scan(&m.ID, &m.UserID, &m.UserName, &m.Content, &replyTo, &m.PubDate); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		if replyTo.Valid {
			m.ReplyTo = &replyTo.Int64
		}
		posts = append(posts, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", table, err)
	}
	return posts, nil
}
