package prescription

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carepoint/opd/internal/domain/billing"
	"github.com/carepoint/opd/internal/domain/inventory"
	"github.com/carepoint/opd/internal/domain/outpatient"
	"github.com/carepoint/opd/internal/platform/apperr"
	"github.com/carepoint/opd/internal/platform/db"
)

var (
	ErrNotPending       = errors.New("prescription is not pending")
	ErrVisitCancelled   = errors.New("op registration is cancelled")
	ErrUnknownMedicine  = errors.New("medicine not found or inactive")
	ErrUnknownTreatment = errors.New("treatment charge not found or inactive")
	ErrActorRequired    = errors.New("acting user is required")
	ErrNothingToAdd     = errors.New("at least one medicine or treatment is required")
)

// VisitFinder resolves OP registrations by UUID or OP number.
type VisitFinder interface {
	Find(ctx context.Context, ref string) (*outpatient.Registration, error)
}

// MedicineCatalog returns medicines from the formulary.
type MedicineCatalog interface {
	GetMedicine(ctx context.Context, id uuid.UUID) (*inventory.Medicine, error)
}

// Dispenser deducts dispensed medicine from stock, joining the caller's
// transaction.
type Dispenser interface {
	Dispense(ctx context.Context, medicineID uuid.UUID, qty float64, reference string, actor *uuid.UUID) (*inventory.StockTransaction, error)
}

// ChargeFinder returns billable charges.
type ChargeFinder interface {
	GetCharge(ctx context.Context, id uuid.UUID) (*billing.Charge, error)
}

type Service struct {
	medicines  MedicineRepository
	treatments TreatmentRepository
	visits     VisitFinder
	catalog    MedicineCatalog
	stock      Dispenser
	charges    ChargeFinder
	tx         db.Transactor
	logger     zerolog.Logger
	now        func() time.Time
}

func NewService(
	medicines MedicineRepository,
	treatments TreatmentRepository,
	visits VisitFinder,
	catalog MedicineCatalog,
	stock Dispenser,
	charges ChargeFinder,
	tx db.Transactor,
	logger zerolog.Logger,
) *Service {
	return &Service{
		medicines:  medicines,
		treatments: treatments,
		visits:     visits,
		catalog:    catalog,
		stock:      stock,
		charges:    charges,
		tx:         tx,
		logger:     logger,
		now:        time.Now,
	}
}

// Prescribe adds medicine and treatment orders to an OP visit. Either every
// line is stored or none is.
func (s *Service) Prescribe(ctx context.Context, visitRef string, req PrescribeRequest, actor *uuid.UUID) (*VisitPrescriptions, error) {
	if actor == nil {
		return nil, ErrActorRequired
	}
	if len(req.Medicines) == 0 && len(req.Treatments) == 0 {
		return nil, ErrNothingToAdd
	}
	visit, err := s.visits.Find(ctx, visitRef)
	if err != nil {
		return nil, err
	}
	if visit.Status == outpatient.StatusCancelled {
		return nil, ErrVisitCancelled
	}

	out := &VisitPrescriptions{}
	for i, order := range req.Medicines {
		rx, err := s.medicineLine(ctx, visit, order, *actor)
		if err != nil {
			return nil, fmt.Errorf("medicines[%d]: %w", i, err)
		}
		out.Medicines = append(out.Medicines, rx)
	}
	for i, order := range req.Treatments {
		rx, err := s.treatmentLine(ctx, visit, order, *actor)
		if err != nil {
			return nil, fmt.Errorf("treatments[%d]: %w", i, err)
		}
		out.Treatments = append(out.Treatments, rx)
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		for _, rx := range out.Medicines {
			if err := s.medicines.Create(ctx, rx); err != nil {
				return err
			}
		}
		for _, rx := range out.Treatments {
			if err := s.treatments.Create(ctx, rx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) medicineLine(ctx context.Context, visit *outpatient.Registration, o MedicineOrder, actor uuid.UUID) (*MedicinePrescription, error) {
	o.Dosage = strings.TrimSpace(o.Dosage)
	o.Frequency = strings.TrimSpace(o.Frequency)
	o.Quantity = round2(o.Quantity)
	switch {
	case o.MedicineID == uuid.Nil:
		return nil, apperr.Invalid("medicine_id is required")
	case o.Dosage == "":
		return nil, apperr.Invalid("dosage is required")
	case o.Frequency == "":
		return nil, apperr.Invalid("frequency is required")
	case o.DurationDays <= 0:
		return nil, apperr.Invalid("duration_days must be positive")
	case o.Quantity <= 0:
		return nil, apperr.Invalid("quantity must be positive")
	}
	med, err := s.catalog.GetMedicine(ctx, o.MedicineID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrUnknownMedicine
		}
		return nil, err
	}
	if !med.Active {
		return nil, ErrUnknownMedicine
	}
	return &MedicinePrescription{
		OPRegistrationID: visit.ID,
		PatientID:        visit.PatientID,
		MedicineID:       med.ID,
		Dosage:           o.Dosage,
		Frequency:        o.Frequency,
		DurationDays:     o.DurationDays,
		Quantity:         o.Quantity,
		Instructions:     trimmed(o.Instructions),
		Status:           StatusPending,
		PrescribedBy:     actor,
		MedicineName:     med.DisplayName(),
		OPNumber:         visit.OPNumber,
		PatientCode:      visit.PatientCode,
		PatientName:      visit.PatientName,
	}, nil
}

func (s *Service) treatmentLine(ctx context.Context, visit *outpatient.Registration, o TreatmentOrder, actor uuid.UUID) (*TreatmentPrescription, error) {
	name := strings.TrimSpace(o.TreatmentName)
	if o.TreatmentChargeID != nil {
		ch, err := s.charges.GetCharge(ctx, *o.TreatmentChargeID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return nil, ErrUnknownTreatment
			}
			return nil, err
		}
		if !ch.Active || ch.Category != billing.CategoryTreatment {
			return nil, ErrUnknownTreatment
		}
		if name == "" {
			name = ch.Name
		}
	}
	if name == "" {
		return nil, apperr.Invalid("treatment_name is required")
	}
	if o.Sessions <= 0 {
		return nil, apperr.Invalid("sessions must be positive")
	}
	return &TreatmentPrescription{
		OPRegistrationID:  visit.ID,
		PatientID:         visit.PatientID,
		TreatmentChargeID: o.TreatmentChargeID,
		TreatmentName:     name,
		Sessions:          o.Sessions,
		Notes:             trimmed(o.Notes),
		Status:            StatusPending,
		PrescribedBy:      actor,
		OPNumber:          visit.OPNumber,
		PatientCode:       visit.PatientCode,
		PatientName:       visit.PatientName,
	}, nil
}

// ForVisit returns the visit together with everything prescribed on it.
func (s *Service) ForVisit(ctx context.Context, visitRef string) (*outpatient.Registration, *VisitPrescriptions, error) {
	visit, err := s.visits.Find(ctx, visitRef)
	if err != nil {
		return nil, nil, err
	}
	meds, err := s.medicines.ListByVisit(ctx, visit.ID)
	if err != nil {
		return nil, nil, err
	}
	treatments, err := s.treatments.ListByVisit(ctx, visit.ID)
	if err != nil {
		return nil, nil, err
	}
	if meds == nil {
		meds = []*MedicinePrescription{}
	}
	if treatments == nil {
		treatments = []*TreatmentPrescription{}
	}
	return visit, &VisitPrescriptions{Medicines: meds, Treatments: treatments}, nil
}

// -- Medicine prescriptions --

func (s *Service) GetMedicinePrescription(ctx context.Context, id uuid.UUID) (*MedicinePrescription, error) {
	return s.medicines.GetByID(ctx, id)
}

func (s *Service) SearchMedicinePrescriptions(ctx context.Context, params map[string]string, limit, offset int) ([]*MedicinePrescription, int, error) {
	return s.medicines.Search(ctx, params, limit, offset)
}

// PharmacyQueue lists pending medicine prescriptions, oldest first.
func (s *Service) PharmacyQueue(ctx context.Context, params map[string]string, limit, offset int) ([]*MedicinePrescription, int, error) {
	q := copyParams(params)
	q["status"] = StatusPending
	return s.medicines.Search(ctx, q, limit, offset)
}

// ServeMedicine dispenses a pending prescription. The status change and the
// stock deduction commit together; on insufficient stock nothing is written.
func (s *Service) ServeMedicine(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*MedicinePrescription, error) {
	if actor == nil {
		return nil, ErrActorRequired
	}
	var rx *MedicinePrescription
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		rx, err = s.medicines.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if rx.Status != StatusPending {
			return ErrNotPending
		}
		if _, err := s.stock.Dispense(ctx, rx.MedicineID, rx.Quantity, rx.OPNumber, actor); err != nil {
			return err
		}
		now := s.now().UTC()
		rx.Status = StatusServed
		rx.ServedBy = actor
		rx.ServedAt = &now
		return s.medicines.UpdateStatus(ctx, rx)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("prescription_id", rx.ID.String()).
		Str("op_number", rx.OPNumber).
		Float64("quantity", rx.Quantity).
		Msg("medicine dispensed")
	return rx, nil
}

func (s *Service) CancelMedicine(ctx context.Context, id uuid.UUID, reason string) (*MedicinePrescription, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Invalid("reason is required")
	}
	rx, err := s.medicines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rx.Status != StatusPending {
		return nil, ErrNotPending
	}
	rx.Status = StatusCancelled
	rx.CancelledReason = &reason
	if err := s.medicines.UpdateStatus(ctx, rx); err != nil {
		return nil, err
	}
	return rx, nil
}

// -- Treatment prescriptions --

func (s *Service) GetTreatmentPrescription(ctx context.Context, id uuid.UUID) (*TreatmentPrescription, error) {
	return s.treatments.GetByID(ctx, id)
}

func (s *Service) SearchTreatmentPrescriptions(ctx context.Context, params map[string]string, limit, offset int) ([]*TreatmentPrescription, int, error) {
	return s.treatments.Search(ctx, params, limit, offset)
}

// PhysioQueue lists pending treatment prescriptions, oldest first.
func (s *Service) PhysioQueue(ctx context.Context, params map[string]string, limit, offset int) ([]*TreatmentPrescription, int, error) {
	q := copyParams(params)
	q["status"] = StatusPending
	return s.treatments.Search(ctx, q, limit, offset)
}

// RecordSession counts one delivered session. The prescription is served
// by actor once the last prescribed session is recorded.
func (s *Service) RecordSession(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*TreatmentPrescription, error) {
	if actor == nil {
		return nil, ErrActorRequired
	}
	var rx *TreatmentPrescription
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		rx, err = s.treatments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if rx.Status != StatusPending {
			return ErrNotPending
		}
		rx.SessionsCompleted++
		if rx.SessionsCompleted >= rx.Sessions {
			s.markServed(rx, actor)
		}
		return s.treatments.UpdateProgress(ctx, rx)
	})
	if err != nil {
		return nil, err
	}
	return rx, nil
}

// ServeTreatment closes a pending treatment as served, even when fewer
// sessions than prescribed were delivered.
func (s *Service) ServeTreatment(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*TreatmentPrescription, error) {
	if actor == nil {
		return nil, ErrActorRequired
	}
	var rx *TreatmentPrescription
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		rx, err = s.treatments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if rx.Status != StatusPending {
			return ErrNotPending
		}
		s.markServed(rx, actor)
		return s.treatments.UpdateProgress(ctx, rx)
	})
	if err != nil {
		return nil, err
	}
	return rx, nil
}

func (s *Service) markServed(rx *TreatmentPrescription, actor *uuid.UUID) {
	now := s.now().UTC()
	rx.Status = StatusServed
	rx.ServedBy = actor
	rx.ServedAt = &now
}

func (s *Service) CancelTreatment(ctx context.Context, id uuid.UUID, reason string) (*TreatmentPrescription, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Invalid("reason is required")
	}
	rx, err := s.treatments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rx.Status != StatusPending {
		return nil, ErrNotPending
	}
	rx.Status = StatusCancelled
	rx.CancelledReason = &reason
	if err := s.treatments.UpdateProgress(ctx, rx); err != nil {
		return nil, err
	}
	return rx, nil
}

func copyParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	return out
}

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
