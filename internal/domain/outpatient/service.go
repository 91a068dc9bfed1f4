package outpatient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carepoint/opd/internal/domain/patient"
	"github.com/carepoint/opd/internal/domain/staff"
	"github.com/carepoint/opd/internal/platform/apperr"
	"github.com/carepoint/opd/internal/platform/db"
)

var (
	ErrNotPending     = errors.New("registration is not pending")
	ErrUnknownPatient = errors.New("patient not found")
	ErrUnknownDoctor  = errors.New("doctor not found or inactive")
	ErrActorRequired  = errors.New("acting user is required")
)

// PatientFinder resolves a patient UUID or PT code.
type PatientFinder interface {
	Lookup(ctx context.Context, ref string) (*patient.Patient, error)
}

// DoctorFinder returns the doctor only when the account is an active doctor.
type DoctorFinder interface {
	ActiveDoctor(ctx context.Context, id uuid.UUID) (*staff.User, error)
}

// FeeSchedule supplies the default consultation fee. ok is false when no
// consultation charge is configured.
type FeeSchedule interface {
	ConsultationFee(ctx context.Context) (fee float64, ok bool, err error)
}

// FormatOPNumber renders the human-facing visit number: OP-20240131-0007.
func FormatOPNumber(day time.Time, seq int) string {
	return fmt.Sprintf("OP-%s-%04d", day.Format("20060102"), seq)
}

type Service struct {
	repo     Repository
	patients PatientFinder
	doctors  DoctorFinder
	fees     FeeSchedule
	tx       db.Transactor
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, patients PatientFinder, doctors DoctorFinder, fees FeeSchedule, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		doctors:  doctors,
		fees:     fees,
		tx:       tx,
		logger:   logger,
		now:      time.Now,
	}
}

// today is the current local calendar date at midnight UTC, matching how
// DATE columns round-trip through pgx.
func (s *Service) today() time.Time {
	y, m, d := s.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Register creates today's visit for a patient with a doctor. The OP number
// and the doctor's token are allocated under a per-day lock so concurrent
// desks never hand out the same number.
func (s *Service) Register(ctx context.Context, req RegisterRequest, actor *uuid.UUID) (*Registration, error) {
	if strings.TrimSpace(req.Patient) == "" {
		return nil, apperr.Invalid("patient is required")
	}
	if req.DoctorID == uuid.Nil {
		return nil, apperr.Invalid("doctor_id is required")
	}
	if err := validateVitals(&req.Vitals); err != nil {
		return nil, err
	}

	p, err := s.patients.Lookup(ctx, req.Patient)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrUnknownPatient
		}
		return nil, err
	}
	doc, err := s.doctors.ActiveDoctor(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) || errors.Is(err, staff.ErrNotDoctor) {
			return nil, ErrUnknownDoctor
		}
		return nil, err
	}

	fee, err := s.resolveFee(ctx, req.ConsultationFee)
	if err != nil {
		return nil, err
	}

	reg := &Registration{
		VisitDate:       s.today(),
		PatientID:       p.ID,
		DoctorID:        doc.ID,
		Department:      req.Department,
		Complaint:       trimmed(req.Complaint),
		Vitals:          req.Vitals,
		ConsultationFee: fee,
		Status:          StatusPending,
		CreatedBy:       actor,
	}
	if reg.Department == nil {
		reg.Department = doc.Department
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockDay(ctx, reg.VisitDate); err != nil {
			return err
		}
		seq, token, err := s.repo.NextNumbers(ctx, reg.VisitDate, reg.DoctorID)
		if err != nil {
			return fmt.Errorf("allocate op number: %w", err)
		}
		reg.DailySeq = seq
		reg.TokenNumber = token
		reg.OPNumber = FormatOPNumber(reg.VisitDate, seq)
		return s.repo.Create(ctx, reg)
	})
	if err != nil {
		return nil, err
	}

	reg.PatientCode = p.PatientID
	reg.PatientName = p.Name
	reg.DoctorName = doc.FullName
	return reg, nil
}

func (s *Service) resolveFee(ctx context.Context, requested *float64) (float64, error) {
	if requested != nil {
		if *requested < 0 {
			return 0, apperr.Invalid("consultation_fee must not be negative")
		}
		return round2(*requested), nil
	}
	if s.fees == nil {
		return 0, nil
	}
	fee, ok, err := s.fees.ConsultationFee(ctx)
	if err != nil {
		return 0, fmt.Errorf("consultation fee: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return fee, nil
}

func (s *Service) GetRegistration(ctx context.Context, id uuid.UUID) (*Registration, error) {
	return s.repo.GetByID(ctx, id)
}

// Find resolves a registration by UUID or OP number.
func (s *Service) Find(ctx context.Context, ref string) (*Registration, error) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		return s.repo.GetByID(ctx, id)
	}
	return s.repo.GetByNumber(ctx, strings.ToUpper(ref))
}

// Queue lists a doctor's pending visits for day in token order. A zero day
// means today.
func (s *Service) Queue(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]*Registration, error) {
	if day.IsZero() {
		day = s.today()
	}
	return s.repo.Queue(ctx, doctorID, day)
}

func (s *Service) SearchRegistrations(ctx context.Context, params map[string]string, limit, offset int) ([]*Registration, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}

// History lists every visit of a patient, newest first.
func (s *Service) History(ctx context.Context, patientRef string, limit, offset int) ([]*Registration, int, error) {
	p, err := s.patients.Lookup(ctx, patientRef)
	if err != nil {
		return nil, 0, err
	}
	return s.repo.Search(ctx, map[string]string{"patient_id": p.ID.String()}, limit, offset)
}

// Consult records the doctor's diagnosis and notes on a pending visit.
func (s *Service) Consult(ctx context.Context, id uuid.UUID, req ConsultRequest) (*Registration, error) {
	reg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.Status != StatusPending {
		return nil, ErrNotPending
	}
	if req.Diagnosis != nil {
		reg.Diagnosis = trimmed(req.Diagnosis)
	}
	if req.Notes != nil {
		reg.Notes = trimmed(req.Notes)
	}
	if req.Vitals != nil {
		if err := validateVitals(req.Vitals); err != nil {
			return nil, err
		}
		reg.Vitals = *req.Vitals
	}
	if err := s.repo.UpdateConsultation(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Complete marks a pending visit served by actor.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*Registration, error) {
	if actor == nil {
		return nil, ErrActorRequired
	}
	reg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.Status != StatusPending {
		return nil, ErrNotPending
	}
	now := s.now().UTC()
	reg.Status = StatusServed
	reg.ServedBy = actor
	reg.ServedAt = &now
	if err := s.repo.UpdateStatus(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Cancel moves a pending visit to cancelled with a reason.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Registration, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Invalid("reason is required")
	}
	reg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.Status != StatusPending {
		return nil, ErrNotPending
	}
	reg.Status = StatusCancelled
	reg.CancelledReason = &reason
	if err := s.repo.UpdateStatus(ctx, reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// CloseDay cancels every visit still pending from a date before today.
func (s *Service) CloseDay(ctx context.Context) (int64, error) {
	n, err := s.repo.CancelPendingBefore(ctx, s.today(), DayClosedReason)
	if err != nil {
		return 0, fmt.Errorf("close day: %w", err)
	}
	if n > 0 {
		s.logger.Info().Int64("cancelled", n).Msg("closed pending registrations from previous days")
	}
	return n, nil
}

func validateVitals(v *Vitals) error {
	if v.WeightKg != nil && (*v.WeightKg <= 0 || *v.WeightKg > 500) {
		return apperr.Invalid("weight_kg out of range")
	}
	if v.TemperatureC != nil && (*v.TemperatureC < 25 || *v.TemperatureC > 45) {
		return apperr.Invalid("temperature_c out of range")
	}
	if v.Pulse != nil && (*v.Pulse <= 0 || *v.Pulse > 300) {
		return apperr.Invalid("pulse out of range")
	}
	v.BloodPressure = trimmed(v.BloodPressure)
	return nil
}

// trimmed returns nil for blank strings.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
