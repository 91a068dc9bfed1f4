package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carepoint/opd/internal/platform/apperr"
)

var validGenders = map[string]bool{
	"male":   true,
	"female": true,
	"other":  true,
}

var validBloodGroups = map[string]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

const maxAge = 150

// FormatCode renders a sequence value as a patient code: PT000042.
func FormatCode(n int64) string {
	return fmt.Sprintf("PT%06d", n)
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// CreatePatient validates p and stores it under a freshly allocated code.
// Codes come from a database sequence, so they are never reused.
func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := s.validate(p); err != nil {
		return err
	}
	n, err := s.repo.NextSequence(ctx)
	if err != nil {
		return fmt.Errorf("allocate patient code: %w", err)
	}
	p.PatientID = FormatCode(n)
	return s.repo.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetPatientByCode(ctx context.Context, code string) (*Patient, error) {
	return s.repo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

// Lookup resolves either a UUID or a patient code.
func (s *Service) Lookup(ctx context.Context, ref string) (*Patient, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return s.repo.GetByID(ctx, id)
	}
	return s.GetPatientByCode(ctx, ref)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	existing, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if err := s.validate(p); err != nil {
		return err
	}
	p.PatientID = existing.PatientID
	p.CreatedBy = existing.CreatedBy
	p.CreatedAt = existing.CreatedAt
	return s.repo.Update(ctx, p)
}

func (s *Service) SearchPatients(ctx context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}

func (s *Service) validate(p *Patient) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return apperr.Invalid("name is required")
	}
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	if !validGenders[p.Gender] {
		return apperr.Invalid("gender must be male, female or other")
	}
	if p.DateOfBirth != nil {
		if p.DateOfBirth.After(s.now()) {
			return apperr.Invalid("date_of_birth cannot be in the future")
		}
		age := yearsBetween(*p.DateOfBirth, s.now())
		p.Age = &age
	}
	if p.Age != nil && (*p.Age < 0 || *p.Age > maxAge) {
		return apperr.Invalidf("age must be between 0 and %d", maxAge)
	}
	if p.BloodGroup != nil {
		bg := strings.ToUpper(strings.TrimSpace(*p.BloodGroup))
		if bg == "" {
			p.BloodGroup = nil
		} else if !validBloodGroups[bg] {
			return apperr.Invalidf("invalid blood_group: %s", *p.BloodGroup)
		} else {
			p.BloodGroup = &bg
		}
	}
	return nil
}
