package outpatient

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusServed    = "served"
	StatusCancelled = "cancelled"
)

// DayClosedReason is recorded on registrations cancelled by the day-close job.
const DayClosedReason = "day closed"

// Vitals are the observations taken at the registration desk.
type Vitals struct {
	WeightKg      *float64 `db:"weight_kg" json:"weight_kg,omitempty"`
	BloodPressure *string  `db:"blood_pressure" json:"blood_pressure,omitempty"`
	TemperatureC  *float64 `db:"temperature_c" json:"temperature_c,omitempty"`
	Pulse         *int     `db:"pulse" json:"pulse,omitempty"`
}

// Registration maps to the op_registrations table. PatientCode, PatientName
// and DoctorName are joined in for display and are not stored.
type Registration struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	OPNumber           string     `db:"op_number" json:"op_number"`
	VisitDate          time.Time  `db:"visit_date" json:"visit_date"`
	DailySeq           int        `db:"daily_seq" json:"-"`
	TokenNumber        int        `db:"token_number" json:"token_number"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID           uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	Department         *string    `db:"department" json:"department,omitempty"`
	Complaint          *string    `db:"complaint" json:"complaint,omitempty"`
	Vitals             Vitals     `json:"vitals"`
	ConsultationFee    float64    `db:"consultation_fee" json:"consultation_fee"`
	Status             string     `db:"status" json:"status"`
	Diagnosis          *string    `db:"diagnosis" json:"diagnosis,omitempty"`
	Notes              *string    `db:"notes" json:"notes,omitempty"`
	ServedBy           *uuid.UUID `db:"served_by" json:"served_by,omitempty"`
	ServedAt           *time.Time `db:"served_at" json:"served_at,omitempty"`
	CancelledReason    *string    `db:"cancelled_reason" json:"cancelled_reason,omitempty"`
	ConsultationBillID *uuid.UUID `db:"consultation_bill_id" json:"consultation_bill_id,omitempty"`
	CreatedBy          *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`

	PatientCode string `json:"patient_code,omitempty"`
	PatientName string `json:"patient_name,omitempty"`
	DoctorName  string `json:"doctor_name,omitempty"`
}

// RegisterRequest is the reception payload. Patient accepts either the
// patient UUID or the PT code. A nil fee falls back to the consultation charge.
type RegisterRequest struct {
	Patient         string    `json:"patient"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	Department      *string   `json:"department,omitempty"`
	Complaint       *string   `json:"complaint,omitempty"`
	Vitals          Vitals    `json:"vitals"`
	ConsultationFee *float64  `json:"consultation_fee,omitempty"`
}

// ConsultRequest records the doctor's findings. Nil fields are left alone.
type ConsultRequest struct {
	Diagnosis *string `json:"diagnosis,omitempty"`
	Notes     *string `json:"notes,omitempty"`
	Vitals    *Vitals `json:"vitals,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}
