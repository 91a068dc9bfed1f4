package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/carepoint/opd/internal/domain/billing"
	"github.com/carepoint/opd/internal/domain/inventory"
	"github.com/carepoint/opd/internal/domain/outpatient"
	"github.com/carepoint/opd/internal/domain/patient"
	"github.com/carepoint/opd/internal/domain/prescription"
	"github.com/carepoint/opd/internal/domain/staff"
	"github.com/carepoint/opd/internal/platform/catalog"
	"github.com/carepoint/opd/internal/platform/sandbox"
)

const openingStockReference = "opening stock"

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// SupplierDirectory finds suppliers by name.
type SupplierDirectory interface {
	SearchSuppliers(ctx context.Context, params map[string]string, limit, offset int) ([]*inventory.Supplier, int, error)
}

// findSupplier returns the supplier whose name matches exactly, ignoring case.
func findSupplier(ctx context.Context, dir SupplierDirectory, name string) (*inventory.Supplier, error) {
	matches, _, err := dir.SearchSuppliers(ctx, map[string]string{"name": name}, 100, 0)
	if err != nil {
		return nil, err
	}
	for _, s := range matches {
		if strings.EqualFold(s.Name, strings.TrimSpace(name)) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("supplier %q not found", name)
}

// catalogStore writes catalog entries through the inventory and billing
// services. Entries that already exist are reported as skipped.
type catalogStore struct {
	inventory *inventory.Service
	billing   *billing.Service
	suppliers map[string]uuid.UUID
}

func (a *app) catalogStore() *catalogStore {
	return &catalogStore{
		inventory: a.inventory,
		billing:   a.billing,
		suppliers: make(map[string]uuid.UUID),
	}
}

func (s *catalogStore) AddSupplier(ctx context.Context, in catalog.Supplier) (bool, error) {
	sup := &inventory.Supplier{
		Name:          strings.TrimSpace(in.Name),
		ContactPerson: optional(in.ContactPerson),
		Phone:         optional(in.Phone),
		Email:         optional(in.Email),
		Address:       optional(in.Address),
		GSTIN:         optional(in.GSTIN),
	}
	err := s.inventory.CreateSupplier(ctx, sup)
	if errors.Is(err, inventory.ErrSupplierExists) {
		existing, err := findSupplier(ctx, s.inventory, in.Name)
		if err != nil {
			return false, err
		}
		s.suppliers[strings.ToLower(existing.Name)] = existing.ID
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.suppliers[strings.ToLower(sup.Name)] = sup.ID
	return true, nil
}

func (s *catalogStore) AddCharge(ctx context.Context, in catalog.Charge) (bool, error) {
	err := s.billing.CreateCharge(ctx, &billing.Charge{
		Code:     in.Code,
		Name:     in.Name,
		Category: in.Category,
		Amount:   in.Amount,
	})
	if errors.Is(err, billing.ErrChargeExists) {
		return false, nil
	}
	return err == nil, err
}

// AddMedicine creates the medicine and books its opening stock. Opening
// stock is only booked for new medicines so a re-import never doubles it.
func (s *catalogStore) AddMedicine(ctx context.Context, in catalog.Medicine) (bool, error) {
	m := &inventory.Medicine{
		Name:         in.Name,
		GenericName:  optional(in.GenericName),
		Form:         in.Form,
		Strength:     in.Strength,
		Unit:         in.Unit,
		UnitPrice:    in.UnitPrice,
		ReorderLevel: in.ReorderLevel,
	}
	err := s.inventory.CreateMedicine(ctx, m)
	if errors.Is(err, inventory.ErrMedicineExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if in.OpeningStock <= 0 {
		return true, nil
	}

	ref := openingStockReference
	req := inventory.TransactionRequest{
		Type:      inventory.TxIn,
		Quantity:  in.OpeningStock,
		Reference: &ref,
		UnitCost:  &m.UnitPrice,
	}
	if in.Supplier != "" {
		if id, ok := s.suppliers[strings.ToLower(strings.TrimSpace(in.Supplier))]; ok {
			req.SupplierID = &id
		}
	}
	if _, err := s.inventory.RecordMedicineTransaction(ctx, m.ID, req, nil); err != nil {
		return true, fmt.Errorf("opening stock: %w", err)
	}
	return true, nil
}

// seedStore writes demo data through the same services the API uses.
type seedStore struct {
	staff     *staff.Service
	patients  *patient.Service
	visits    *outpatient.Service
	rx        *prescription.Service
	inventory *inventory.Service
	billing   *billing.Service
}

func (a *app) seedStore() *seedStore {
	return &seedStore{
		staff:     a.staff,
		patients:  a.patients,
		visits:    a.visits,
		rx:        a.rx,
		inventory: a.inventory,
		billing:   a.billing,
	}
}

func (s *seedStore) AddStaff(ctx context.Context, m sandbox.StaffMember) (uuid.UUID, error) {
	u, err := s.staff.CreateUser(ctx, staff.CreateUserRequest{
		Username:   m.Username,
		Password:   m.Password,
		FullName:   m.FullName,
		Role:       m.Role,
		Department: optional(m.Department),
	})
	if err != nil {
		return uuid.Nil, err
	}
	return u.ID, nil
}

func (s *seedStore) AddPatient(ctx context.Context, p sandbox.Person, actor uuid.UUID) (uuid.UUID, error) {
	age := p.Age
	rec := &patient.Patient{
		Name:         p.Name,
		Gender:       p.Gender,
		Age:          &age,
		Phone:        optional(p.Phone),
		Address:      optional(p.Address),
		GuardianName: optional(p.GuardianName),
		BloodGroup:   optional(p.BloodGroup),
		CreatedBy:    &actor,
	}
	if err := s.patients.CreatePatient(ctx, rec); err != nil {
		return uuid.Nil, err
	}
	return rec.ID, nil
}

func (s *seedStore) RegisterVisit(ctx context.Context, v sandbox.Visit, actor uuid.UUID) (uuid.UUID, error) {
	weight, temp, pulse := v.WeightKg, v.TemperatureC, v.Pulse
	reg, err := s.visits.Register(ctx, outpatient.RegisterRequest{
		Patient:    v.PatientID.String(),
		DoctorID:   v.DoctorID,
		Department: optional(v.Department),
		Complaint:  optional(v.Complaint),
		Vitals: outpatient.Vitals{
			WeightKg:      &weight,
			BloodPressure: optional(v.BloodPressure),
			TemperatureC:  &temp,
			Pulse:         &pulse,
		},
	}, &actor)
	if err != nil {
		return uuid.Nil, err
	}
	return reg.ID, nil
}

func (s *seedStore) Prescribe(ctx context.Context, visitID uuid.UUID, meds []sandbox.MedicineLine, treatments []sandbox.TreatmentLine, doctor uuid.UUID) error {
	req := prescription.PrescribeRequest{}
	for _, m := range meds {
		req.Medicines = append(req.Medicines, prescription.MedicineOrder{
			MedicineID:   m.MedicineID,
			Dosage:       m.Dosage,
			Frequency:    m.Frequency,
			DurationDays: m.DurationDays,
			Quantity:     m.Quantity,
		})
	}
	for _, t := range treatments {
		chargeID := t.ChargeID
		req.Treatments = append(req.Treatments, prescription.TreatmentOrder{
			TreatmentChargeID: &chargeID,
			Sessions:          t.Sessions,
		})
	}
	_, err := s.rx.Prescribe(ctx, visitID.String(), req, &doctor)
	return err
}

func (s *seedStore) Formulary(ctx context.Context) ([]uuid.UUID, []uuid.UUID, error) {
	medicines, _, err := s.inventory.SearchMedicines(ctx, map[string]string{"active": "true"}, 100, 0)
	if err != nil {
		return nil, nil, err
	}
	charges, _, err := s.billing.SearchCharges(ctx, map[string]string{
		"category": billing.CategoryTreatment,
		"active":   "true",
	}, 100, 0)
	if err != nil {
		return nil, nil, err
	}

	medIDs := make([]uuid.UUID, 0, len(medicines))
	for _, m := range medicines {
		medIDs = append(medIDs, m.ID)
	}
	chargeIDs := make([]uuid.UUID, 0, len(charges))
	for _, c := range charges {
		chargeIDs = append(chargeIDs, c.ID)
	}
	return medIDs, chargeIDs, nil
}
