package staff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carepoint/opd/internal/platform/apperr"
	"github.com/carepoint/opd/internal/platform/auth"
	"github.com/carepoint/opd/internal/platform/db"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInactiveUser       = errors.New("user account is inactive")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrNotDoctor          = errors.New("user is not an active doctor")
)

const (
	minUsernameLen = 3
	maxUsernameLen = 64
	minPasswordLen = 8
)

type Service struct {
	users  UserRepository
	tokens *auth.TokenIssuer
}

func NewService(users UserRepository, tokens *auth.TokenIssuer) *Service {
	return &Service{users: users, tokens: tokens}
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	username := strings.TrimSpace(req.Username)
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return nil, apperr.Invalidf("username must be %d to %d characters", minUsernameLen, maxUsernameLen)
	}
	if strings.ContainsAny(username, " \t") {
		return nil, apperr.Invalid("username must not contain spaces")
	}
	if len(req.Password) < minPasswordLen {
		return nil, apperr.Invalidf("password must be at least %d characters", minPasswordLen)
	}
	if strings.TrimSpace(req.FullName) == "" {
		return nil, apperr.Invalid("full_name is required")
	}
	if !auth.ValidRole(req.Role) {
		return nil, apperr.Invalidf("invalid role: %s", req.Role)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Username:     username,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
		Department:   req.Department,
		Phone:        req.Phone,
		Active:       true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, params map[string]string, limit, offset int) ([]*User, int, error) {
	return s.users.Search(ctx, params, limit, offset)
}

// ListDoctors returns active doctors, optionally narrowed to a department.
func (s *Service) ListDoctors(ctx context.Context, department string, limit, offset int) ([]*User, int, error) {
	params := map[string]string{"role": auth.RoleDoctor, "active": "true"}
	if department != "" {
		params["department"] = department
	}
	return s.users.Search(ctx, params, limit, offset)
}

// ActiveDoctor loads id and checks that it is an active doctor account.
func (s *Service) ActiveDoctor(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotDoctor
		}
		return nil, err
	}
	if u.Role != auth.RoleDoctor || !u.Active {
		return nil, ErrNotDoctor
	}
	return u, nil
}

func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.FullName != nil {
		if strings.TrimSpace(*req.FullName) == "" {
			return nil, apperr.Invalid("full_name must not be empty")
		}
		u.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Role != nil {
		if !auth.ValidRole(*req.Role) {
			return nil, apperr.Invalidf("invalid role: %s", *req.Role)
		}
		u.Role = *req.Role
	}
	if req.Department != nil {
		u.Department = req.Department
	}
	if req.Phone != nil {
		u.Phone = req.Phone
	}
	if req.Active != nil {
		u.Active = *req.Active
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ChangePassword verifies the current password before replacing it.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(u.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	return s.SetPassword(ctx, id, next)
}

// SetPassword replaces a password without checking the old one (admin reset).
func (s *Service) SetPassword(ctx context.Context, id uuid.UUID, password string) error {
	if len(password) < minPasswordLen {
		return apperr.Invalidf("password must be at least %d characters", minPasswordLen)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, id, hash)
}

func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !u.Active {
		return nil, ErrInactiveUser
	}
	return u, nil
}

func (s *Service) IssueToken(u *User) (string, time.Time, error) {
	if s.tokens == nil {
		return "", time.Time{}, fmt.Errorf("token issuer not configured")
	}
	return s.tokens.Issue(u.ID, u.FullName, u.Role)
}

// Login authenticates and issues an access token in one step.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	u, err := s.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	token, exp, err := s.IssueToken(u)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{Token: token, ExpiresAt: exp, User: u}, nil
}
