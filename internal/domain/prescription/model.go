package prescription

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusServed    = "served"
	StatusCancelled = "cancelled"
)

// MedicinePrescription maps to medicine_prescriptions. The trailing fields
// are joined in for display.
type MedicinePrescription struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	OPRegistrationID uuid.UUID  `db:"op_registration_id" json:"op_registration_id"`
	PatientID        uuid.UUID  `db:"patient_id" json:"patient_id"`
	MedicineID       uuid.UUID  `db:"medicine_id" json:"medicine_id"`
	Dosage           string     `db:"dosage" json:"dosage"`
	Frequency        string     `db:"frequency" json:"frequency"`
	DurationDays     int        `db:"duration_days" json:"duration_days"`
	Quantity         float64    `db:"quantity" json:"quantity"`
	Instructions     *string    `db:"instructions" json:"instructions,omitempty"`
	Status           string     `db:"status" json:"status"`
	PrescribedBy     uuid.UUID  `db:"prescribed_by" json:"prescribed_by"`
	ServedBy         *uuid.UUID `db:"served_by" json:"served_by,omitempty"`
	ServedAt         *time.Time `db:"served_at" json:"served_at,omitempty"`
	CancelledReason  *string    `db:"cancelled_reason" json:"cancelled_reason,omitempty"`
	BillID           *uuid.UUID `db:"bill_id" json:"bill_id,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`

	MedicineName string `json:"medicine_name,omitempty"`
	OPNumber     string `json:"op_number,omitempty"`
	PatientCode  string `json:"patient_code,omitempty"`
	PatientName  string `json:"patient_name,omitempty"`
}

// TreatmentPrescription maps to physical_treatment_prescriptions.
type TreatmentPrescription struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	OPRegistrationID  uuid.UUID  `db:"op_registration_id" json:"op_registration_id"`
	PatientID         uuid.UUID  `db:"patient_id" json:"patient_id"`
	TreatmentChargeID *uuid.UUID `db:"treatment_charge_id" json:"treatment_charge_id,omitempty"`
	TreatmentName     string     `db:"treatment_name" json:"treatment_name"`
	Sessions          int        `db:"sessions" json:"sessions"`
	SessionsCompleted int        `db:"sessions_completed" json:"sessions_completed"`
	Notes             *string    `db:"notes" json:"notes,omitempty"`
	Status            string     `db:"status" json:"status"`
	PrescribedBy      uuid.UUID  `db:"prescribed_by" json:"prescribed_by"`
	ServedBy          *uuid.UUID `db:"served_by" json:"served_by,omitempty"`
	ServedAt          *time.Time `db:"served_at" json:"served_at,omitempty"`
	CancelledReason   *string    `db:"cancelled_reason" json:"cancelled_reason,omitempty"`
	BillID            *uuid.UUID `db:"bill_id" json:"bill_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`

	OPNumber    string `json:"op_number,omitempty"`
	PatientCode string `json:"patient_code,omitempty"`
	PatientName string `json:"patient_name,omitempty"`
}

// MedicineOrder is one medicine line in a prescribe request.
type MedicineOrder struct {
	MedicineID   uuid.UUID `json:"medicine_id"`
	Dosage       string    `json:"dosage"`
	Frequency    string    `json:"frequency"`
	DurationDays int       `json:"duration_days"`
	Quantity     float64   `json:"quantity"`
	Instructions *string   `json:"instructions,omitempty"`
}

// TreatmentOrder is one physiotherapy line. When TreatmentChargeID is set
// the name defaults to the charge's name.
type TreatmentOrder struct {
	TreatmentChargeID *uuid.UUID `json:"treatment_charge_id,omitempty"`
	TreatmentName     string     `json:"treatment_name"`
	Sessions          int        `json:"sessions"`
	Notes             *string    `json:"notes,omitempty"`
}

type PrescribeRequest struct {
	Medicines  []MedicineOrder  `json:"medicines"`
	Treatments []TreatmentOrder `json:"treatments"`
}

// VisitPrescriptions groups everything prescribed on one OP visit.
type VisitPrescriptions struct {
	Medicines  []*MedicinePrescription  `json:"medicines"`
	Treatments []*TreatmentPrescription `json:"treatments"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}
