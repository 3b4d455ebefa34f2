package account

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/bloodlab/bloodlab/internal/platform/apperr"
	"github.com/bloodlab/bloodlab/internal/platform/auth"
	"github.com/bloodlab/bloodlab/pkg/emailaddr"
	"github.com/bloodlab/bloodlab/pkg/phone"
)

const (
	minPasswordLen = 6
	// bcrypt refuses longer input.
	maxPasswordBytes = 72
)

// passwordProblem describes why pw is unusable, or returns "".
func passwordProblem(label, pw string) string {
	switch {
	case len(pw) < minPasswordLen:
		return label + " must be at least 6 characters long"
	case len(pw) > maxPasswordBytes:
		return label + " must be at most 72 bytes long"
	}
	return ""
}

var errInvalidCredentials = apperr.Unauthorized("invalid credentials")

// Recorder counts authentication attempts. *metrics.Metrics satisfies it.
type Recorder interface {
	AuthAttempt(action, outcome string)
}

type Service struct {
	users       UserRepository
	tokens      *auth.TokenIssuer
	phoneRegion string
	bcryptCost  int
	metrics     Recorder
	logger      zerolog.Logger

	// dummyHash is compared against when no user matches so that unknown
	// accounts take as long to reject as wrong passwords.
	dummyHash []byte
}

func NewService(users UserRepository, tokens *auth.TokenIssuer, phoneRegion string, bcryptCost int, logger zerolog.Logger) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("bloodlab-dummy-password"), bcryptCost)
	return &Service{
		users:       users,
		tokens:      tokens,
		phoneRegion: phoneRegion,
		bcryptCost:  bcryptCost,
		logger:      logger.With().Str("component", "account").Logger(),
		dummyHash:   dummy,
	}
}

func (s *Service) SetMetrics(m Recorder) {
	s.metrics = m
}

func (s *Service) record(action, outcome string) {
	if s.metrics != nil {
		s.metrics.AuthAttempt(action, outcome)
	}
}

// Register creates a patient account and signs it in. Admin accounts are
// only created through CreateUser.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if req.Role != "" && req.Role != auth.RolePatient {
		s.record("register", "rejected")
		return nil, apperr.Forbidden("only patient accounts can self-register")
	}
	req.Role = auth.RolePatient

	u, err := s.CreateUser(ctx, req)
	if err != nil {
		s.record("register", "rejected")
		return nil, err
	}
	s.record("register", "success")
	return s.issue(u)
}

// CreateUser validates and stores a new active account with any role.
func (s *Service) CreateUser(ctx context.Context, req RegisterRequest) (*User, error) {
	details := map[string]string{}
	u := &User{Active: true}

	name := strings.TrimSpace(req.Name)
	if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
		details["name"] = "name must be between 2 and 100 characters"
	}
	u.Name = name

	if email, err := emailaddr.Normalize(req.Email); err != nil {
		details["email"] = "please provide a valid email"
	} else {
		u.Email = email
	}
	if p, err := phone.Normalize(req.Phone, s.phoneRegion); err != nil {
		details["phone"] = "please provide a valid phone number"
	} else {
		u.Phone = p
	}
	if msg := passwordProblem("password", req.Password); msg != "" {
		details["password"] = msg
	}

	u.Role = req.Role
	if u.Role == "" {
		u.Role = auth.RolePatient
	}
	if !auth.ValidRole(u.Role) {
		details["role"] = "role must be admin or patient"
	}
	if len(details) > 0 {
		return nil, apperr.Validation("validation failed", details)
	}

	if existing, err := s.users.FindByEmailOrPhone(ctx, u.Email, u.Phone); err == nil && existing != nil {
		return nil, apperr.Conflict("user with this email or phone already exists")
	} else if err != nil && !apperr.IsNotFound(err) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, apperr.Wrap(err, "hash password")
	}
	u.PasswordHash = string(hash)

	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", u.ID).Str("role", u.Role).Msg("user created")
	return u, nil
}

// Login accepts an email, a phone number, or both. Every mismatch, including
// an inactive account, reports the same error.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	if strings.TrimSpace(req.Email) == "" && strings.TrimSpace(req.Phone) == "" {
		return nil, apperr.Validation("validation failed", map[string]string{"email": "email or phone is required"})
	}
	if req.Password == "" {
		return nil, apperr.Validation("validation failed", map[string]string{"password": "password is required"})
	}

	var email, ph string
	if strings.TrimSpace(req.Email) != "" {
		email, _ = emailaddr.Normalize(req.Email)
	}
	if strings.TrimSpace(req.Phone) != "" {
		ph, _ = phone.Normalize(req.Phone, s.phoneRegion)
	}

	var u *User
	if email != "" || ph != "" {
		found, err := s.users.FindByEmailOrPhone(ctx, email, ph)
		if err != nil && !apperr.IsNotFound(err) {
			return nil, err
		}
		if found != nil && found.Active {
			u = found
		}
	}

	if u == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
		s.record("login", "failure")
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		s.record("login", "failure")
		return nil, errInvalidCredentials
	}

	s.record("login", "success")
	s.logger.Info().Int64("user_id", u.ID).Msg("user logged in")
	return s.issue(u)
}

func (s *Service) issue(u *User) (*AuthResult, error) {
	token, exp, err := s.tokens.Issue(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, apperr.Wrap(err, "issue token")
	}
	return &AuthResult{User: u, Token: token, ExpiresAt: exp}, nil
}

func (s *Service) Profile(ctx context.Context, userID int64) (*User, error) {
	return s.users.GetByID(ctx, userID)
}

// UpdateProfile changes name, email and phone. Role and password are not
// touched here.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, in ProfileUpdate) (*User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	details := map[string]string{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
			details["name"] = "name must be between 2 and 100 characters"
		} else {
			u.Name = name
		}
	}
	if in.Email != nil {
		if email, err := emailaddr.Normalize(*in.Email); err != nil {
			details["email"] = "please provide a valid email"
		} else {
			u.Email = email
		}
	}
	if in.Phone != nil {
		if p, err := phone.Normalize(*in.Phone, s.phoneRegion); err != nil {
			details["phone"] = "please provide a valid phone number"
		} else {
			u.Phone = p
		}
	}
	if len(details) > 0 {
		return nil, apperr.Validation("validation failed", details)
	}

	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, userID int64, req ChangePasswordRequest) error {
	if req.CurrentPassword == "" {
		return apperr.Validation("validation failed", map[string]string{"currentPassword": "current password is required"})
	}
	if msg := passwordProblem("new password", req.NewPassword); msg != "" {
		return apperr.Validation("validation failed", map[string]string{"newPassword": msg})
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		s.record("change_password", "failure")
		return apperr.Unauthorized("current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.bcryptCost)
	if err != nil {
		return apperr.Wrap(err, "hash password")
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}
	s.record("change_password", "success")
	s.logger.Info().Int64("user_id", userID).Msg("password changed")
	return nil
}

// ActiveRole returns the stored role of an active user. Inactive and
// missing users both report NotFound.
func (s *Service) ActiveRole(ctx context.Context, userID int64) (string, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if !u.Active {
		return "", apperr.NotFound("user", userID)
	}
	return u.Role, nil
}
