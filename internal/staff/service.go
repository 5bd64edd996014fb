// Package staff manages back-office accounts and issues their session tokens.
package staff

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"taxi-service/internal/domain"
	"taxi-service/pkg/jwt"
	"taxi-service/pkg/validation"
)

// ErrInvalidCredentials is returned by Login for any unknown e-mail or
// wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Service contains staff account logic.
type Service struct {
	repo Repository
	cost int
}

// NewService creates a staff service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost}
}

// Create registers an account. Only admins may call it.
func (s *Service) Create(ctx context.Context, actor domain.Actor, req CreateRequest) (*Member, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return s.create(ctx, req)
}

func (s *Service) create(ctx context.Context, req CreateRequest) (*Member, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Role == "" {
		req.Role = domain.RoleStaff
	}
	switch {
	case !validation.ValidateName(req.Name):
		return nil, domain.Invalid("name", "is required")
	case !validation.ValidateEmail(req.Email):
		return nil, domain.Invalid("email", "is not a valid e-mail address")
	case !validation.ValidatePassword(req.Password):
		return nil, domain.Invalid("password", "must be 8 to 100 characters")
	case !req.Role.Valid():
		return nil, domain.Invalid("role", "must be admin or staff")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, err
	}
	m := &Member{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(req.Name),
		Email:        req.Email,
		Role:         req.Role,
		PasswordHash: string(hash),
	}
	if err := s.repo.Insert(ctx, m); err != nil {
		return nil, err
	}
	log.Printf("[staff] created %s account %s", m.Role, m.ID)
	return m, nil
}

// Login authenticates a member and returns a JWT carrying their role.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	m, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(req.Password)) != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := jwt.Generate(m.ID, m.Email, string(m.Role))
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, Member: m}, nil
}

// GetByID fetches a single member.
func (s *Service) GetByID(ctx context.Context, id string) (*Member, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// List returns every account.
func (s *Service) List(ctx context.Context) ([]*Member, error) {
	out, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*Member{}
	}
	return out, nil
}

// EnsureAdmin creates the first admin account when none exists. It does
// nothing once an admin is registered.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) error {
	n, err := s.repo.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if email == "" || password == "" {
		log.Printf("[staff] WARNING: no admin account and ADMIN_EMAIL/ADMIN_PASSWORD unset")
		return nil
	}
	if _, err := s.create(ctx, CreateRequest{Name: name, Email: email, Password: password, Role: domain.RoleAdmin}); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	return nil
}
