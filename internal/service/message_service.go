package service

import (
	"context"
	"strings"

	"yoyaku/internal/domain"
	"yoyaku/internal/models"

	"github.com/rs/zerolog"
)

// MessageService backs the shared message board.
type MessageService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewMessageService(repo domain.Repository, logger *zerolog.Logger) *MessageService {
	return &MessageService{repo: repo, logger: logger}
}

func (s *MessageService) PostMessage(ctx context.Context, author *models.User, content string, replyTo *int64) (*models.Message, error) {
	if author == nil {
		return nil, domain.ErrUnauthenticated
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.NewValidationError("content", "required")
	}

	msg := &models.Message{UserID: author.ID, UserName: author.Name, Content: content, ReplyTo: replyTo}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, &domain.PersistenceError{Op: "create message", Err: err}
	}
	return msg, nil
}

// ListMessages returns top-level messages, newest first.
func (s *MessageService) ListMessages(ctx context.Context) ([]*models.Message, error) {
	list, err := s.repo.ListMessages(ctx)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list messages", Err: err}
	}
	return list, nil
}
