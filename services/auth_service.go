package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/Dosada05/club-events/models"
	"github.com/Dosada05/club-events/repositories"
)

const minPasswordLength = 6

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthService struct {
	members  repositories.MemberRepository
	identity Identity
}

func NewAuthService(members repositories.MemberRepository, identity Identity) *AuthService {
	return &AuthService{members: members, identity: identity}
}

// Register creates a member account with the member role.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*models.Member, error) {
	return createMember(ctx, s.members, input.Username, input.Email, input.Password, models.RoleMember)
}

// Login checks the credentials and returns the member with a fresh token.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*models.Member, string, error) {
	member, err := s.members.GetByUsername(ctx, strings.TrimSpace(input.Username))
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("failed to find member: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(input.Password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("failed to compare password hash: %w", err)
	}

	token, err := s.identity.Issue(Principal{Username: member.Username, Role: member.Role})
	if err != nil {
		return nil, "", err
	}

	member.PasswordHash = ""
	return member, token, nil
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrPasswordTooShort
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func createMember(ctx context.Context, members repositories.MemberRepository, username, email, password string, role models.MemberRole) (*models.Member, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if email == "" {
		return nil, ErrEmailRequired
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	member := &models.Member{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := members.Create(ctx, member); err != nil {
		if errors.Is(err, repositories.ErrMemberConflict) {
			return nil, ErrUsernameConflict
		}
		return nil, fmt.Errorf("failed to create member: %w", err)
	}

	member.PasswordHash = ""
	return member, nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: %q is not a valid email address", ErrValidationFailed, email)
	}
	return nil
}
