package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dosada05/club-events/models"
	"github.com/Dosada05/club-events/repositories"
)

type CreateMemberInput struct {
	Username string            `json:"username"`
	Email    string            `json:"email"`
	Password string            `json:"password"`
	Role     models.MemberRole `json:"role"`
}

// UpdateMemberInput holds the fields an admin may change. Score is not
// among them: it only moves with participations.
type UpdateMemberInput struct {
	Email    *string            `json:"email"`
	Role     *models.MemberRole `json:"role"`
	Password *string            `json:"password"`
}

type MemberService struct {
	members      repositories.MemberRepository
	registration *RegistrationService
}

func NewMemberService(members repositories.MemberRepository, registration *RegistrationService) *MemberService {
	return &MemberService{members: members, registration: registration}
}

func (s *MemberService) Profile(ctx context.Context, username string) (*models.Member, error) {
	member, err := s.members.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member %s: %w", username, err)
	}
	member.PasswordHash = ""
	return member, nil
}

func (s *MemberService) List(ctx context.Context) ([]models.Member, error) {
	members, err := s.members.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	for i := range members {
		members[i].PasswordHash = ""
	}
	return members, nil
}

func (s *MemberService) Create(ctx context.Context, input CreateMemberInput) (*models.Member, error) {
	if input.Role == "" {
		input.Role = models.RoleMember
	}
	return createMember(ctx, s.members, input.Username, input.Email, input.Password, input.Role)
}

func (s *MemberService) Update(ctx context.Context, username string, input UpdateMemberInput) (*models.Member, error) {
	member, err := s.members.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member %s: %w", username, err)
	}

	if input.Email != nil {
		email := strings.TrimSpace(*input.Email)
		if email == "" {
			return nil, ErrEmailRequired
		}
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		member.Email = email
	}
	if input.Role != nil {
		if !input.Role.Valid() {
			return nil, ErrInvalidRole
		}
		member.Role = *input.Role
	}
	if input.Password != nil {
		hash, err := hashPassword(*input.Password)
		if err != nil {
			return nil, err
		}
		member.PasswordHash = hash
	}

	if err := s.members.Update(ctx, member); err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to update member %s: %w", username, err)
	}
	member.PasswordHash = ""
	return member, nil
}

// Delete removes the member and every participation of theirs.
func (s *MemberService) Delete(ctx context.Context, username string) error {
	return s.registration.RemoveMember(ctx, username)
}
