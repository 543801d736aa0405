package accounts

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/oggyb/tweetheart/internal/app"
	"github.com/oggyb/tweetheart/internal/db"
	svcErr "github.com/oggyb/tweetheart/internal/errors"
	"github.com/oggyb/tweetheart/internal/logger"
	"github.com/oggyb/tweetheart/internal/repository"
	"github.com/oggyb/tweetheart/internal/service/notifications"
	"github.com/oggyb/tweetheart/internal/service/profiles"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt ignores anything longer
)

var errBadCredentials = svcErr.Unauthenticated("invalid email or password")

type SignupRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Gender       string `json:"gender"`
	InterestedIn string `json:"interested_in"`
	Birthdate    string `json:"birthdate"`
	Bio          string `json:"bio"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is a signed-in user together with their session token.
type Session struct {
	User      profiles.Profile `json:"user"`
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Service handles signup and login and issues session tokens.
type Service struct {
	appCtx   *app.AppContext
	users    *repository.UserRepository
	profiles *profiles.Service
	notes    *notifications.Service
	now      func() time.Time
}

func NewAccountService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		users:    repository.NewUserRepository(appCtx.DB),
		profiles: profiles.NewProfileService(appCtx),
		notes:    notifications.NewNotificationService(appCtx),
		now:      time.Now,
	}
}

// Signup creates an account and signs it in.
//
// Behavior:
//   - Email is normalised to lower case and must be unique (AlreadyExists).
//   - Passwords are stored as bcrypt hashes.
//   - Birthdate must make the user an adult.
//   - The new user gets a welcome notification; failing to store it does
//     not fail the signup.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (Session, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return Session{}, err
	}
	s.log(ctx).Debug("Signup called", "email", email)

	if n := len(req.Password); n < minPasswordLength || n > maxPasswordLength {
		return Session{}, svcErr.InvalidArgument("password must be 8-72 characters")
	}
	firstName := strings.TrimSpace(req.FirstName)
	if firstName == "" || len(firstName) > 64 {
		return Session{}, svcErr.InvalidArgument("first_name must be 1-64 characters")
	}
	if !profiles.ValidGender(req.Gender) {
		return Session{}, svcErr.InvalidArgument("gender is not supported")
	}
	interestedIn := req.InterestedIn
	if interestedIn == "" {
		interestedIn = "everyone"
	}
	if !profiles.ValidInterest(interestedIn) {
		return Session{}, svcErr.InvalidArgument("interested_in is not supported")
	}
	born, err := profiles.ParseBirthdate(req.Birthdate, s.now())
	if err != nil {
		return Session{}, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return Session{}, svcErr.AlreadyExists("email is already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, svcErr.Map(err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.log(ctx).Error("password hashing failed", "err", err)
		return Session{}, svcErr.Map(err)
	}

	user := db.User{
		Email:        email,
		PasswordHash: string(hash),
		FirstName:    firstName,
		LastName:     strings.TrimSpace(req.LastName),
		Gender:       req.Gender,
		InterestedIn: interestedIn,
		Birthdate:    born,
		Bio:          strings.TrimSpace(req.Bio),
		Active:       true,
		LastLoginAt:  s.now().UTC(),
	}
	if err := s.users.Create(ctx, &user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Session{}, svcErr.AlreadyExists("email is already registered")
		}
		s.log(ctx).Error("signup failed", "email", email, "err", err)
		return Session{}, svcErr.Map(err)
	}

	s.log(ctx).Info("user signed up", "user_id", user.ID)
	if err := s.notes.Notify(ctx, notifications.Draft{
		UserID:  user.ID,
		Type:    db.NotificationSystem,
		Title:   "Welcome to Tweetheart",
		Message: "Add a photo and start swiping to find your first match.",
	}); err != nil {
		s.log(ctx).Warn("welcome notification failed", "user_id", user.ID, "err", err)
	}
	return s.issue(ctx, user)
}

// Login checks credentials and records the login time. Unknown emails and
// wrong passwords get the same error.
func (s *Service) Login(ctx context.Context, req LoginRequest) (Session, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return Session{}, errBadCredentials
	}
	s.log(ctx).Debug("Login called", "email", email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Session{}, errBadCredentials
		}
		return Session{}, svcErr.Map(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return Session{}, errBadCredentials
	}
	if !user.Active {
		return Session{}, svcErr.PermissionDenied("account is disabled")
	}

	if err := s.users.TouchLogin(ctx, user.ID, s.now().UTC()); err != nil {
		s.log(ctx).Warn("failed to record login", "user_id", user.ID, "err", err)
	}
	return s.issue(ctx, user)
}

// Me returns the signed-in user's own profile.
func (s *Service) Me(ctx context.Context, userID uint64) (profiles.Profile, error) {
	return s.profiles.GetMe(ctx, userID)
}

func (s *Service) issue(ctx context.Context, user db.User) (Session, error) {
	token, expiresAt, err := s.appCtx.Sessions.Issue(user.ID, user.Email)
	if err != nil {
		s.log(ctx).Error("failed to issue session", "user_id", user.ID, "err", err)
		return Session{}, svcErr.Map(err)
	}
	me, err := s.profiles.GetMe(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{User: me, Token: token, ExpiresAt: expiresAt}, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" || len(addr.Address) > 128 {
		return "", svcErr.InvalidArgument("email is invalid")
	}
	return strings.ToLower(addr.Address), nil
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(ctx, s.appCtx.Logger)
}
