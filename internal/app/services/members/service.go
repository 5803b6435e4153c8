package members

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/groupfit/server/internal/app/auth"
	"github.com/groupfit/server/internal/app/domain/calendar"
	"github.com/groupfit/server/internal/app/domain/member"
	"github.com/groupfit/server/internal/app/metrics"
	"github.com/groupfit/server/internal/app/storage"
	apperrors "github.com/groupfit/server/internal/errors"
	"github.com/groupfit/server/internal/logging"
)

// DefaultSearchLimit caps search results.
const DefaultSearchLimit = 50

const badCredentials = "Unable to authenticate with the credentials provided"

// Service manages member accounts.
type Service struct {
	store  storage.MemberStore
	hasher auth.Hasher
	log    *logging.Logger
}

// New constructs a member service.
func New(store storage.MemberStore, hasher auth.Hasher, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("members")
	}
	return &Service{store: store, hasher: hasher, log: log}
}

// RegisterInput carries the fields accepted on sign-up.
type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	DateOfBirth calendar.Date
}

// Register creates an active member with a hashed password.
func (s *Service) Register(ctx context.Context, in RegisterInput) (member.Member, error) {
	m, err := s.newMember(in.Email, in.Password)
	if err != nil {
		return member.Member{}, err
	}
	m.FirstName = strings.TrimSpace(in.FirstName)
	m.LastName = strings.TrimSpace(in.LastName)
	m.DateOfBirth = in.DateOfBirth

	created, err := s.store.CreateMember(ctx, m)
	if err != nil {
		return member.Member{}, translateWrite(err)
	}
	metrics.RecordRegistration()
	s.log.WithContext(ctx).WithField("member_id", created.ID).Info("member registered")
	return created, nil
}

// CreateSuperuser creates a member with staff and superuser flags set.
func (s *Service) CreateSuperuser(ctx context.Context, email, password string) (member.Member, error) {
	m, err := s.newMember(email, password)
	if err != nil {
		return member.Member{}, err
	}
	m.IsStaff = true
	m.IsSuperuser = true
	created, err := s.store.CreateMember(ctx, m)
	if err != nil {
		return member.Member{}, translateWrite(err)
	}
	s.log.WithContext(ctx).WithField("member_id", created.ID).Warn("superuser created")
	return created, nil
}

func (s *Service) newMember(email, password string) (member.Member, error) {
	normalized, err := member.NormalizeEmail(email)
	if err != nil {
		return member.Member{}, apperrors.Validation(err.Error()).WithDetails("field", "email")
	}
	if err := validatePassword(password); err != nil {
		return member.Member{}, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return member.Member{}, apperrors.Internal("Failed to hash password", err)
	}
	return member.Member{
		Email:        normalized,
		PasswordHash: hash,
		JoinDate:     calendar.Today(),
		IsActive:     true,
		IsStaff:      true,
	}, nil
}

func validatePassword(password string) error {
	if len([]rune(password)) < member.MinPasswordLength {
		return apperrors.Validationf("password must be at least %d characters", member.MinPasswordLength).
			WithDetails("field", "password")
	}
	return nil
}

// Authenticate checks credentials and records the login time.
func (s *Service) Authenticate(ctx context.Context, email, password string) (member.Member, error) {
	normalized, err := member.NormalizeEmail(email)
	if err != nil {
		metrics.RecordAuthAttempt(false)
		return member.Member{}, apperrors.Validation(badCredentials)
	}
	m, err := s.store.GetMemberByEmail(ctx, normalized)
	if err != nil {
		metrics.RecordAuthAttempt(false)
		if errors.Is(err, storage.ErrNotFound) {
			return member.Member{}, apperrors.Validation(badCredentials)
		}
		return member.Member{}, apperrors.Internal("Failed to load member", err)
	}
	if err := s.hasher.Verify(m.PasswordHash, password); err != nil || !m.IsActive {
		metrics.RecordAuthAttempt(false)
		s.log.LogSecurityEvent(ctx, "login_failed", map[string]interface{}{"member_id": m.ID})
		return member.Member{}, apperrors.Validation(badCredentials)
	}

	updated, err := s.store.RecordLogin(ctx, m.ID, time.Now())
	if err != nil {
		return member.Member{}, apperrors.Internal("Failed to record login", err)
	}
	metrics.RecordAuthAttempt(true)
	return updated, nil
}

// Get returns a member by id.
func (s *Service) Get(ctx context.Context, id int64) (member.Member, error) {
	m, err := s.store.GetMember(ctx, id)
	if err != nil {
		return member.Member{}, translateRead(err, "member", id)
	}
	return m, nil
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Email       *string
	Password    *string
	FirstName   *string
	LastName    *string
	DateOfBirth *calendar.Date
}

// Update applies in to the member. A new password is rehashed.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (member.Member, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return member.Member{}, err
	}
	if in.Email != nil {
		normalized, err := member.NormalizeEmail(*in.Email)
		if err != nil {
			return member.Member{}, apperrors.Validation(err.Error()).WithDetails("field", "email")
		}
		m.Email = normalized
	}
	if in.FirstName != nil {
		m.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		m.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.DateOfBirth != nil {
		m.DateOfBirth = *in.DateOfBirth
	}
	if in.Password != nil && *in.Password != "" {
		if err := validatePassword(*in.Password); err != nil {
			return member.Member{}, err
		}
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return member.Member{}, apperrors.Internal("Failed to hash password", err)
		}
		m.PasswordHash = hash
	}

	updated, err := s.store.UpdateMember(ctx, m)
	if err != nil {
		return member.Member{}, translateWrite(err)
	}
	return updated, nil
}

// Search matches term against first name, last name and email without
// regard to case. An empty term returns no results.
func (s *Service) Search(ctx context.Context, term string) ([]member.Member, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []member.Member{}, nil
	}
	found, err := s.store.SearchMembers(ctx, term, DefaultSearchLimit)
	if err != nil {
		return nil, apperrors.Internal("Failed to search members", err)
	}
	if found == nil {
		found = []member.Member{}
	}
	return found, nil
}

// Lookup returns members keyed by id, skipping ids that do not exist.
func (s *Service) Lookup(ctx context.Context, ids []int64) (map[int64]member.Member, error) {
	found, err := s.store.GetMembers(ctx, ids)
	if err != nil {
		return nil, apperrors.Internal("Failed to load members", err)
	}
	return found, nil
}

func translateRead(err error, resource string, id int64) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.NotFound(resource, id)
	}
	return apperrors.Internal("Failed to load "+resource, err)
}

func translateWrite(err error) error {
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		return apperrors.Validation("member with this email already exists").WithDetails("field", "email")
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.NotFound("member", nil)
	default:
		return apperrors.Internal("Failed to save member", err)
	}
}
