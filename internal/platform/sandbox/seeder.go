// Package sandbox generates synthetic OPD activity for demo and
// development databases: staff, patients, visits and their prescriptions.
// Everything is written through a Store so the normal validation,
// numbering and stock rules apply to seeded data too.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls the volume of generated data.
type SeedConfig struct {
	DoctorCount          int    `json:"doctor_count"`
	PatientCount         int    `json:"patient_count"`
	VisitsPerPatient     int    `json:"visits_per_patient"`
	MedicinesPerVisit    int    `json:"medicines_per_visit"`
	TreatmentRatePercent int    `json:"treatment_rate_percent"`
	Password             string `json:"-"`
	Seed                 uint64 `json:"seed"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		DoctorCount:          4,
		PatientCount:         40,
		VisitsPerPatient:     1,
		MedicinesPerVisit:    2,
		TreatmentRatePercent: 20,
		Password:             "demo-password",
	}
}

func (c SeedConfig) validate() error {
	if c.DoctorCount < 1 {
		return fmt.Errorf("doctor count must be at least 1")
	}
	if c.PatientCount < 0 || c.VisitsPerPatient < 0 || c.MedicinesPerVisit < 0 {
		return fmt.Errorf("counts must not be negative")
	}
	if c.TreatmentRatePercent < 0 || c.TreatmentRatePercent > 100 {
		return fmt.Errorf("treatment rate must be between 0 and 100")
	}
	if len(c.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Generated records
// ---------------------------------------------------------------------------

type StaffMember struct {
	Username   string
	Password   string
	FullName   string
	Role       string
	Department string
}

type Person struct {
	Name         string
	Gender       string
	Age          int
	Phone        string
	Address      string
	GuardianName string
	BloodGroup   string
}

type Visit struct {
	PatientID     uuid.UUID
	DoctorID      uuid.UUID
	Department    string
	Complaint     string
	WeightKg      float64
	BloodPressure string
	TemperatureC  float64
	Pulse         int
}

type MedicineLine struct {
	MedicineID   uuid.UUID
	Dosage       string
	Frequency    string
	DurationDays int
	Quantity     float64
}

type TreatmentLine struct {
	ChargeID uuid.UUID
	Sessions int
}

// Store persists seeded records. Formulary lists the active medicine and
// treatment charge ids that prescriptions may reference.
type Store interface {
	AddStaff(ctx context.Context, m StaffMember) (uuid.UUID, error)
	AddPatient(ctx context.Context, p Person, actor uuid.UUID) (uuid.UUID, error)
	RegisterVisit(ctx context.Context, v Visit, actor uuid.UUID) (uuid.UUID, error)
	Prescribe(ctx context.Context, visitID uuid.UUID, meds []MedicineLine, treatments []TreatmentLine, doctor uuid.UUID) error
	Formulary(ctx context.Context) (medicines, treatments []uuid.UUID, err error)
}

// SeedResult summarizes a seed run.
type SeedResult struct {
	Staff      int           `json:"staff"`
	Patients   int           `json:"patients"`
	Visits     int           `json:"visits"`
	Medicines  int           `json:"medicine_prescriptions"`
	Treatments int           `json:"treatment_prescriptions"`
	Duration   time.Duration `json:"duration"`
}

// ---------------------------------------------------------------------------
// Generator
// ---------------------------------------------------------------------------

var (
	departments = []string{"General Medicine", "Orthopaedics", "Paediatrics", "ENT", "Dermatology"}
	complaints  = []string{
		"fever and body ache", "dry cough for a week", "lower back pain",
		"knee pain while climbing stairs", "skin rash on forearm", "ear pain",
		"headache since morning", "shoulder stiffness", "sore throat",
	}
	bloodGroups = []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}
	dosages     = []string{"1 tablet", "2 tablets", "5 ml", "10 ml", "1 capsule"}
	frequencies = []string{"once daily", "twice daily", "thrice daily", "at bedtime", "as needed"}
)

// Generator produces plausible OPD records. The same seed yields the same
// sequence; seed 0 picks a random one.
type Generator struct {
	f   *gofakeit.Faker
	seq int
}

func NewGenerator(seed uint64) *Generator {
	return &Generator{f: gofakeit.New(seed)}
}

func (g *Generator) pick(pool []string) string {
	return pool[g.f.Number(0, len(pool)-1)]
}

// username is unique within one generator so repeated seeds against the
// same database only collide with earlier runs.
func (g *Generator) username(first, last string) string {
	g.seq++
	base := strings.ToLower(first[:1] + last)
	base = strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		return -1
	}, base)
	return fmt.Sprintf("%s%d%02d", base, g.f.Number(10, 99), g.seq)
}

func (g *Generator) Staff(role, password string) StaffMember {
	first, last := g.f.FirstName(), g.f.LastName()
	name := first + " " + last
	if role == "doctor" {
		name = "Dr. " + name
	}
	return StaffMember{
		Username:   g.username(first, last),
		Password:   password,
		FullName:   name,
		Role:       role,
		Department: g.pick(departments),
	}
}

func (g *Generator) Person() Person {
	gender := g.f.Gender()
	first := g.f.FirstName()
	age := g.f.Number(1, 90)
	p := Person{
		Name:       first + " " + g.f.LastName(),
		Gender:     gender,
		Age:        age,
		Phone:      g.f.Phone(),
		Address:    g.f.Street() + ", " + g.f.City(),
		BloodGroup: g.pick(bloodGroups),
	}
	if age < 18 {
		p.GuardianName = g.f.FirstName() + " " + g.f.LastName()
	}
	return p
}

func (g *Generator) Visit(patientID, doctorID uuid.UUID, department string) Visit {
	return Visit{
		PatientID:     patientID,
		DoctorID:      doctorID,
		Department:    department,
		Complaint:     g.pick(complaints),
		WeightKg:      float64(g.f.Number(80, 1000)) / 10,
		BloodPressure: fmt.Sprintf("%d/%d", g.f.Number(100, 150), g.f.Number(60, 95)),
		TemperatureC:  float64(g.f.Number(361, 392)) / 10,
		Pulse:         g.f.Number(60, 110),
	}
}

func (g *Generator) MedicineLine(medicineID uuid.UUID) MedicineLine {
	days := g.f.Number(3, 10)
	return MedicineLine{
		MedicineID:   medicineID,
		Dosage:       g.pick(dosages),
		Frequency:    g.pick(frequencies),
		DurationDays: days,
		Quantity:     float64(days * g.f.Number(1, 3)),
	}
}

func (g *Generator) TreatmentLine(chargeID uuid.UUID) TreatmentLine {
	return TreatmentLine{ChargeID: chargeID, Sessions: g.f.Number(3, 10)}
}

// chance reports true with the given percentage.
func (g *Generator) chance(percent int) bool {
	return g.f.Number(1, 100) <= percent
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Seeder writes one batch of demo data through a Store.
type Seeder struct {
	store  Store
	gen    *Generator
	config SeedConfig
	logger zerolog.Logger
}

func NewSeeder(store Store, config SeedConfig, logger zerolog.Logger) *Seeder {
	return &Seeder{
		store:  store,
		gen:    NewGenerator(config.Seed),
		config: config,
		logger: logger,
	}
}

// Run creates the doctors plus one receptionist, pharmacist and
// physiotherapist, then the patients with their visits. Prescriptions are
// only written when the formulary has entries to reference.
func (s *Seeder) Run(ctx context.Context) (*SeedResult, error) {
	if err := s.config.validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	res := &SeedResult{}

	type doctor struct {
		id         uuid.UUID
		department string
	}
	var doctors []doctor
	for i := 0; i < s.config.DoctorCount; i++ {
		m := s.gen.Staff("doctor", s.config.Password)
		id, err := s.store.AddStaff(ctx, m)
		if err != nil {
			return res, fmt.Errorf("seed doctor %s: %w", m.Username, err)
		}
		doctors = append(doctors, doctor{id: id, department: m.Department})
		res.Staff++
	}

	var receptionist uuid.UUID
	for _, role := range []string{"receptionist", "pharmacist", "physiotherapist"} {
		m := s.gen.Staff(role, s.config.Password)
		id, err := s.store.AddStaff(ctx, m)
		if err != nil {
			return res, fmt.Errorf("seed %s %s: %w", role, m.Username, err)
		}
		if role == "receptionist" {
			receptionist = id
		}
		res.Staff++
	}

	medicines, treatments, err := s.store.Formulary(ctx)
	if err != nil {
		return res, fmt.Errorf("load formulary: %w", err)
	}
	if len(medicines) == 0 {
		s.logger.Warn().Msg("formulary is empty; visits are seeded without prescriptions")
	}

	for i := 0; i < s.config.PatientCount; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		patientID, err := s.store.AddPatient(ctx, s.gen.Person(), receptionist)
		if err != nil {
			return res, fmt.Errorf("seed patient: %w", err)
		}
		res.Patients++

		for j := 0; j < s.config.VisitsPerPatient; j++ {
			doc := doctors[(i+j)%len(doctors)]
			visitID, err := s.store.RegisterVisit(ctx, s.gen.Visit(patientID, doc.id, doc.department), receptionist)
			if err != nil {
				return res, fmt.Errorf("seed visit: %w", err)
			}
			res.Visits++

			meds := s.medicineLines(medicines)
			var therapy []TreatmentLine
			if len(treatments) > 0 && s.gen.chance(s.config.TreatmentRatePercent) {
				therapy = append(therapy, s.gen.TreatmentLine(treatments[s.gen.f.Number(0, len(treatments)-1)]))
			}
			if len(meds) == 0 && len(therapy) == 0 {
				continue
			}
			if err := s.store.Prescribe(ctx, visitID, meds, therapy, doc.id); err != nil {
				return res, fmt.Errorf("seed prescriptions: %w", err)
			}
			res.Medicines += len(meds)
			res.Treatments += len(therapy)
		}
	}

	res.Duration = time.Since(start)
	s.logger.Info().
		Int("staff", res.Staff).
		Int("patients", res.Patients).
		Int("visits", res.Visits).
		Int("medicine_prescriptions", res.Medicines).
		Int("treatment_prescriptions", res.Treatments).
		Dur("duration", res.Duration).
		Msg("demo data seeded")
	return res, nil
}

// medicineLines picks distinct medicines for one visit.
func (s *Seeder) medicineLines(medicines []uuid.UUID) []MedicineLine {
	n := s.config.MedicinesPerVisit
	if n > len(medicines) {
		n = len(medicines)
	}
	if n == 0 {
		return nil
	}
	offset := s.gen.f.Number(0, len(medicines)-1)
	lines := make([]MedicineLine, 0, n)
	for k := 0; k < n; k++ {
		lines = append(lines, s.gen.MedicineLine(medicines[(offset+k)%len(medicines)]))
	}
	return lines
}
