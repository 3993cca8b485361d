package identity

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/healthcard/healthcard/internal/domain/audit"
	"github.com/healthcard/healthcard/internal/platform/auth"
)

var (
	ErrEmailTaken         = fmt.Errorf("email already registered")
	ErrInvalidCredentials = fmt.Errorf("invalid email or password")
)

// ChangeRecorder records audit entries; satisfied by audit.Recorder.
type ChangeRecorder interface {
	Record(ctx context.Context, ch audit.Change)
}

type Service struct {
	users     UserRepository
	patients  PatientRepository
	doctors   DoctorRepository
	recorder  ChangeRecorder
	jwtSecret string
}

func NewService(users UserRepository, patients PatientRepository, doctors DoctorRepository, recorder ChangeRecorder, jwtSecret string) *Service {
	return &Service{
		users:     users,
		patients:  patients,
		doctors:   doctors,
		recorder:  recorder,
		jwtSecret: jwtSecret,
	}
}

// RegisterInput carries the account plus the role-specific profile fields.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     string

	// patient profile
	DateOfBirth *string
	Gender      *string
	Phone       *string
	Address     *string
	BloodType   *string
	Allergies   *string

	// doctor profile
	Specialty     *string
	LicenseNumber *string
}

// Register creates a user account and its role profile, returning the user
// and a signed access token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, string, error) {
	if in.Email == "" {
		return nil, "", fmt.Errorf("email is required")
	}
	if len(in.Password) < 8 {
		return nil, "", fmt.Errorf("password must be at least 8 characters")
	}
	if in.Name == "" {
		return nil, "", fmt.Errorf("name is required")
	}
	if in.Role != auth.RolePatient && in.Role != auth.RoleDoctor {
		return nil, "", fmt.Errorf("invalid role: %s", in.Role)
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, "", ErrEmailTaken
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	u := &User{Email: in.Email, PasswordHash: hash, Name: in.Name, Role: in.Role}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, "", err
	}

	switch in.Role {
	case auth.RolePatient:
		p := &Patient{
			UserID:      u.ID,
			DateOfBirth: in.DateOfBirth,
			Gender:      in.Gender,
			Phone:       in.Phone,
			Address:     in.Address,
			BloodType:   in.BloodType,
			Allergies:   in.Allergies,
		}
		if err := s.patients.Create(ctx, p); err != nil {
			return nil, "", err
		}
	case auth.RoleDoctor:
		d := &Doctor{
			UserID:        u.ID,
			Specialty:     in.Specialty,
			LicenseNumber: in.LicenseNumber,
			Phone:         in.Phone,
		}
		if err := s.doctors.Create(ctx, d); err != nil {
			return nil, "", err
		}
	}

	token, err := auth.MakeToken(u.ID.String(), u.Name, u.Role, s.jwtSecret)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Login verifies credentials and returns the user with a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, "", ErrInvalidCredentials
	}
	token, err := auth.MakeToken(u.ID.String(), u.Name, u.Role, s.jwtSecret)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	return s.patients.GetByUserID(ctx, userID)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByUserID(ctx, userID)
}

// PatientIDForUser resolves the patient profile id owned by a user account.
// Satisfies audit.PatientDirectory.
func (s *Service) PatientIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	p, err := s.patients.GetByUserID(ctx, userID)
	if err != nil {
		return uuid.Nil, err
	}
	return p.ID, nil
}

// PatientProfileUpdate holds the updatable profile fields; nil means "leave
// unchanged".
type PatientProfileUpdate struct {
	DateOfBirth *string `json:"date_of_birth"`
	Gender      *string `json:"gender"`
	Phone       *string `json:"phone"`
	Address     *string `json:"address"`
	BloodType   *string `json:"blood_type"`
	Allergies   *string `json:"allergies"`
}

// UpdatePatientProfile applies the changed fields and records one audit
// entry carrying the prior and new values. An update that changes nothing
// writes nothing and produces no audit entry.
func (s *Service) UpdatePatientProfile(ctx context.Context, actor audit.Actor, ip *string, userID uuid.UUID, upd PatientProfileUpdate) (*Patient, error) {
	p, err := s.patients.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	oldValues := map[string]interface{}{}
	newValues := map[string]interface{}{}

	apply := func(field string, current **string, incoming *string) {
		if incoming == nil {
			return
		}
		if *current != nil && **current == *incoming {
			return
		}
		if *current != nil {
			oldValues[field] = **current
		} else {
			oldValues[field] = nil
		}
		newValues[field] = *incoming
		*current = incoming
	}

	apply("date_of_birth", &p.DateOfBirth, upd.DateOfBirth)
	apply("gender", &p.Gender, upd.Gender)
	apply("phone", &p.Phone, upd.Phone)
	apply("address", &p.Address, upd.Address)
	apply("blood_type", &p.BloodType, upd.BloodType)
	apply("allergies", &p.Allergies, upd.Allergies)

	if len(newValues) == 0 {
		return p, nil
	}

	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}

	fields := make([]string, 0, len(newValues))
	for f := range newValues {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	s.recorder.Record(ctx, audit.Change{
		Actor:        actor,
		Action:       audit.ActionUpdate,
		ResourceType: audit.ResourcePatient,
		ResourceID:   p.ID.String(),
		PatientID:    &p.ID,
		OldValues:    oldValues,
		NewValues:    newValues,
		Description:  fmt.Sprintf("Updated patient profile fields: %s", strings.Join(fields, ", ")),
		IPAddress:    ip,
	})

	return p, nil
}
