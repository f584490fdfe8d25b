package postgres

import (
	"context"
	"fmt"

	"yoyaku/internal/models"
)

func (s *Store) CreateMessage(ctx context.Context, msg *models.Message) error {
	return s.insertPost(ctx, "messages", msg)
}

func (s *Store) ListMessages(ctx context.Context) ([]*models.Message, error) {
	return s.listPosts(ctx, "messages")
}

func (s *Store) CreateNotice(ctx context.Context, notice *models.Notice) error {
	return s.insertPost(ctx, "mail_messages", (*models.Message)(notice))
}

func (s *Store) ListNotices(ctx context.Context) ([]*models.Notice, error) {
	posts, err := s.listPosts(ctx, "mail_messages")
	if err != nil {
		return nil, err
	}
	notices := make([]*models.Notice, 0, len(posts))
	for _, p := range posts {
		notices = append(notices, (*models.Notice)(p))
	}
	return notices, nil
}

func (s *Store) insertPost(ctx context.Context, table string, msg *models.Message) error {
	query := fmt.Sprintf(`INSERT INTO %s (user_id, content, reply_to) VALUES ($1, $2, $3) RETURNING id, pub_date`, table)
	if err := s.conn(ctx).QueryRow(ctx, query, msg.UserID, msg.Content, msg.ReplyTo).Scan(&msg.ID, &msg.PubDate); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func (s *Store) listPosts(ctx context.Context, table string) ([]*models.Message, error) {
	query := fmt.Sprintf(`
SELECT m.id, m.user_id, u.name, m.content, m.reply_to, m.pub_date
FROM %s m JOIN users u ON u.id = m.user_id
WHERE m.reply_to IS NULL
ORDER BY m.pub_date DESC, m.id DESC`, table)
	rows, err := s.conn(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var posts []*models.Message
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.UserName, &m.Content, &m.ReplyTo, &m.PubDate); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		posts = append(posts, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return posts, nil
}
