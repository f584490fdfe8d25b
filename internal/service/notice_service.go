package service

import (
	"context"
	"strings"

	"yoyaku/internal/domain"
	"yoyaku/internal/events"
	"yoyaku/internal/metrics"
	"yoyaku/internal/models"

	"github.com/rs/zerolog"
)

// Broadcast outcomes.
const (
	OutcomeSent           = "sent"
	OutcomeDeliveryFailed = "delivery_failed"
	OutcomeMailDisabled   = "mail_disabled"
	OutcomeNoRecipients   = "no_recipients"
)

// BroadcastResult reports what happened to a stored notice.
type BroadcastResult struct {
	Notice     *models.Notice `json:"notice"`
	Outcome    string         `json:"outcome"`
	Recipients int            `json:"recipients"`
	Delivered  bool           `json:"delivered"`
	Announced  bool           `json:"announced"`
}

// NoticeService stores admin notices and mails them to every user.
type NoticeService struct {
	repo      domain.Repository
	mailer    domain.Mailer
	announcer domain.Announcer
	eventBus  domain.EventPublisher
	subject   string
	logger    *zerolog.Logger
}

func NewNoticeService(
	repo domain.Repository,
	mailer domain.Mailer,
	announcer domain.Announcer,
	eventBus domain.EventPublisher,
	subject string,
	logger *zerolog.Logger,
) *NoticeService {
	if subject == "" {
		subject = models.DefaultNoticeSubject
	}
	return &NoticeService{
		repo:      repo,
		mailer:    mailer,
		announcer: announcer,
		eventBus:  eventBus,
		subject:   subject,
		logger:    logger,
	}
}

// Broadcast stores the notice first; delivery failures never remove it.
// With no registered users it returns the result and domain.ErrNoRecipients.
func (s *NoticeService) Broadcast(ctx context.Context, author *models.User, content string) (*BroadcastResult, error) {
	if author == nil {
		return nil, domain.ErrUnauthenticated
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.NewValidationError("content", "required")
	}

	notice := &models.Notice{UserID: author.ID, UserName: author.Name, Content: content}
	if err := s.repo.CreateNotice(ctx, notice); err != nil {
		return nil, &domain.PersistenceError{Op: "create notice", Err: err}
	}
	result := &BroadcastResult{Notice: notice}

	users, err := s.repo.GetAllUsers(ctx)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list users", Err: err}
	}
	recipients := make([]string, 0, len(users))
	for _, u := range users {
		if u.Email != "" {
			recipients = append(recipients, u.Email)
		}
	}
	result.Recipients = len(recipients)

	result.Announced = s.announce(ctx, content)

	if len(recipients) == 0 {
		result.Outcome = OutcomeNoRecipients
		s.logger.Warn().Int64("notice_id", notice.ID).Msg("notice has no recipients")
		s.publish(result)
		return result, domain.ErrNoRecipients
	}

	result.Outcome = OutcomeMailDisabled
	if s.mailer != nil {
		if err := s.mailer.Send(ctx, recipients, s.subject, content); err != nil {
			result.Outcome = OutcomeDeliveryFailed
			s.logger.Error().Err(err).Int64("notice_id", notice.ID).Int("recipients", len(recipients)).Msg("notice delivery failed")
		} else {
			result.Outcome = OutcomeSent
			result.Delivered = true
		}
		metrics.IncNoticeDelivery("mail", result.Delivered)
	}

	s.logger.Info().
		Int64("notice_id", notice.ID).
		Str("outcome", result.Outcome).
		Int("recipients", result.Recipients).
		Bool("delivered", result.Delivered).
		Msg("notice broadcast")
	s.publish(result)
	return result, nil
}

func (s *NoticeService) announce(ctx context.Context, content string) bool {
	if s.announcer == nil {
		return false
	}
	err := s.announcer.Announce(ctx, s.subject+"\n\n"+content)
	metrics.IncNoticeDelivery("telegram", err == nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("telegram announce failed")
		return false
	}
	return true
}

func (s *NoticeService) ListNotices(ctx context.Context) ([]*models.Notice, error) {
	list, err := s.repo.ListNotices(ctx)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list notices", Err: err}
	}
	return list, nil
}

func (s *NoticeService) publish(result *BroadcastResult) {
	if s.eventBus == nil {
		return
	}
	payload := events.NoticeEventPayload{
		NoticeID:   result.Notice.ID,
		Recipients: result.Recipients,
		Delivered:  result.Delivered,
	}
	if err := s.eventBus.PublishJSON(events.EventNoticeSent, payload); err != nil {
		s.logger.Error().Err(err).Msg("publish event error")
	}
}
