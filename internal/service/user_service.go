package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"yoyaku/internal/domain"
	"yoyaku/internal/events"
	"yoyaku/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const loginKeyPrefix = "login:"

type UserService struct {
	repo          domain.Repository
	guard         domain.GuardRepository
	eventBus      domain.EventPublisher
	adminName     string
	loginAttempts int
	loginWindow   time.Duration
	bcryptCost    int
	logger        *zerolog.Logger
}

type UserServiceOptions struct {
	AdminName     string
	LoginAttempts int
	LoginWindow   time.Duration
	BcryptCost    int
}

func NewUserService(repo domain.Repository, guard domain.GuardRepository, eventBus domain.EventPublisher, opts UserServiceOptions, logger *zerolog.Logger) *UserService {
	if opts.AdminName == "" {
		opts.AdminName = models.DefaultAdminName
	}
	if opts.LoginAttempts <= 0 {
		opts.LoginAttempts = models.LoginAttempts
	}
	if opts.LoginWindow <= 0 {
		opts.LoginWindow = models.LoginWindow * time.Second
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &UserService{
		repo:          repo,
		guard:         guard,
		eventBus:      eventBus,
		adminName:     opts.AdminName,
		loginAttempts: opts.LoginAttempts,
		loginWindow:   opts.LoginWindow,
		bcryptCost:    opts.BcryptCost,
		logger:        logger,
	}
}

func (s *UserService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	switch {
	case name == "":
		return nil, domain.NewValidationError("name", "required")
	case email == "":
		return nil, domain.NewValidationError("email", "required")
	case password == "":
		return nil, domain.NewValidationError("password", "required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.NewValidationError("email", "not a valid address")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, domain.NewValidationError("password", err.Error())
	}

	user := &models.User{Name: name, Email: email, PasswordHash: string(hash)}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrNameTaken) || errors.Is(err, domain.ErrEmailTaken) {
			return nil, err
		}
		return nil, &domain.PersistenceError{Op: "create user", Err: err}
	}

	s.logger.Info().Int64("user_id", user.ID).Str("name", user.Name).Msg("user registered")
	s.publish(events.EventUserRegistered, user)
	return user, nil
}

// Authenticate checks email and password. Repeated failures per email are throttled.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, domain.NewValidationError("email", "required")
	}
	if password == "" {
		return nil, domain.NewValidationError("password", "required")
	}
	if err := s.throttle(ctx, email); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, s.failed(ctx, email, s.lookupError(err))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn().Str("email", email).Msg("authentication failed")
		return nil, s.failed(ctx, email, domain.ErrInvalidCredentials)
	}
	return user, nil
}

// AuthenticateAdmin checks password against the admin account.
func (s *UserService) AuthenticateAdmin(ctx context.Context, password string) (*models.User, error) {
	if password == "" {
		return nil, domain.NewValidationError("password", "required")
	}
	if err := s.throttle(ctx, s.adminName); err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByName(ctx, s.adminName)
	if err != nil {
		return nil, s.failed(ctx, s.adminName, s.lookupError(err))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn().Msg("admin authentication failed")
		return nil, s.failed(ctx, s.adminName, domain.ErrInvalidCredentials)
	}
	return user, nil
}

func (s *UserService) lookupError(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrInvalidCredentials
	}
	return &domain.PersistenceError{Op: "get user", Err: err}
}

func (s *UserService) throttle(ctx context.Context, subject string) error {
	if s.guard == nil {
		return nil
	}
	allowed, err := s.guard.CheckRateLimit(ctx, loginKeyPrefix+subject, s.loginAttempts)
	if err != nil {
		s.logger.Warn().Err(err).Msg("login throttle unavailable")
		return nil
	}
	if !allowed {
		return domain.ErrTooManyAttempts
	}
	return nil
}

// failed counts a rejected login for subject and returns err. Store failures
// are not the caller's fault and are not counted.
func (s *UserService) failed(ctx context.Context, subject string, err error) error {
	if s.guard == nil || !errors.Is(err, domain.ErrInvalidCredentials) {
		return err
	}
	if rerr := s.guard.RecordFailure(ctx, loginKeyPrefix+subject, s.loginWindow); rerr != nil {
		s.logger.Warn().Err(rerr).Msg("login throttle unavailable")
	}
	return err
}

// Unregister deletes the user together with everything they own.
func (s *UserService) Unregister(ctx context.Context, user *models.User) error {
	if user == nil {
		return domain.ErrUnauthenticated
	}
	if err := s.repo.DeleteUser(ctx, user.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return &domain.PersistenceError{Op: "delete user", Err: err}
	}
	s.logger.Info().Int64("user_id", user.ID).Msg("user unregistered")
	s.publish(events.EventUserUnregistered, user)
	return nil
}

func (s *UserService) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, &domain.PersistenceError{Op: "get user", Err: err}
	}
	return user, nil
}

// OwnerNames maps every user id to its display name.
func (s *UserService) OwnerNames(ctx context.Context) (map[int64]string, error) {
	users, err := s.repo.GetAllUsers(ctx)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list users", Err: err}
	}
	names := make(map[int64]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}

func (s *UserService) IsAdmin(user *models.User) bool {
	return user != nil && user.Name == s.adminName
}

func (s *UserService) publish(eventType string, user *models.User) {
	if s.eventBus == nil {
		return
	}
	payload := events.UserEventPayload{UserID: user.ID, Name: user.Name}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
