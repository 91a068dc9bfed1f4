package billing

import (
	"time"

	"github.com/google/uuid"
)

// Charge categories.
const (
	CategoryConsultation = "consultation"
	CategoryProcedure    = "procedure"
	CategoryTreatment    = "treatment"
	CategoryLab          = "lab"
	CategoryMisc         = "misc"
)

// Bill types.
const (
	BillPharmacy = "pharmacy"
	BillService  = "service"
)

// Bill statuses.
const (
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
)

// Payment methods.
const (
	PaymentCash      = "cash"
	PaymentCard      = "card"
	PaymentUPI       = "upi"
	PaymentInsurance = "insurance"
)

// Charge maps to the charges table: the hospital's price list.
type Charge struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Category  string    `db:"category" json:"category"`
	Amount    float64   `db:"amount" json:"amount"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Bill maps to the bills table. Items are loaded with the bill.
type Bill struct {
	ID               uuid.UUID   `db:"id" json:"id"`
	BillNumber       string      `db:"bill_number" json:"bill_number"`
	BillDate         time.Time   `db:"bill_date" json:"bill_date"`
	DailySeq         int         `db:"daily_seq" json:"-"`
	BillType         string      `db:"bill_type" json:"bill_type"`
	PatientID        uuid.UUID   `db:"patient_id" json:"patient_id"`
	OPRegistrationID *uuid.UUID  `db:"op_registration_id" json:"op_registration_id,omitempty"`
	Items            []*BillItem `json:"items"`
	Subtotal         float64     `db:"subtotal" json:"subtotal"`
	Discount         float64     `db:"discount" json:"discount"`
	Total            float64     `db:"total" json:"total"`
	PaymentMethod    string      `db:"payment_method" json:"payment_method"`
	Status           string      `db:"status" json:"status"`
	CancelledReason  *string     `db:"cancelled_reason" json:"cancelled_reason,omitempty"`
	CreatedBy        *uuid.UUID  `db:"created_by" json:"created_by,omitempty"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`

	PatientCode string `json:"patient_code,omitempty"`
	PatientName string `json:"patient_name,omitempty"`
	OPNumber    string `json:"op_number,omitempty"`
}

// BillItem maps to bill_items.
type BillItem struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	BillID      uuid.UUID  `db:"bill_id" json:"-"`
	LineNo      int        `db:"line_no" json:"line_no"`
	Description string     `db:"description" json:"description"`
	ChargeID    *uuid.UUID `db:"charge_id" json:"charge_id,omitempty"`
	MedicineID  *uuid.UUID `db:"medicine_id" json:"medicine_id,omitempty"`
	Quantity    float64    `db:"quantity" json:"quantity"`
	UnitPrice   float64    `db:"unit_price" json:"unit_price"`
	Amount      float64    `db:"amount" json:"amount"`
}

// ItemInput is one line of a manually entered bill. A line that names a
// charge takes its description and price from the charge when left blank.
type ItemInput struct {
	Description string     `json:"description"`
	ChargeID    *uuid.UUID `json:"charge_id,omitempty"`
	MedicineID  *uuid.UUID `json:"medicine_id,omitempty"`
	Quantity    float64    `json:"quantity"`
	UnitPrice   float64    `json:"unit_price"`
}

type CreateBillRequest struct {
	BillType         string      `json:"bill_type"`
	PatientID        uuid.UUID   `json:"patient_id"`
	OPRegistrationID *uuid.UUID  `json:"op_registration_id,omitempty"`
	Items            []ItemInput `json:"items"`
	Discount         float64     `json:"discount"`
	PaymentMethod    string      `json:"payment_method"`
}

// VisitBillRequest settles the unbilled orders of one OP visit.
type VisitBillRequest struct {
	Discount      float64 `json:"discount"`
	PaymentMethod string  `json:"payment_method"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

// Visit is the billing view of an OP registration.
type Visit struct {
	ID                 uuid.UUID
	OPNumber           string
	PatientID          uuid.UUID
	Status             string
	ConsultationFee    float64
	ConsultationBillID *uuid.UUID
}

// Source kinds for Billable.
const (
	SourceConsultation = "consultation"
	SourceMedicine     = "medicine"
	SourceTreatment    = "treatment"
)

// Billable is a served order that has not been put on a bill yet.
type Billable struct {
	Source      string
	SourceID    uuid.UUID
	Description string
	ChargeID    *uuid.UUID
	MedicineID  *uuid.UUID
	Quantity    float64
	UnitPrice   float64
}

// Draft is a bill preview built from a visit's unbilled orders.
type Draft struct {
	BillType         string      `json:"bill_type"`
	PatientID        uuid.UUID   `json:"patient_id"`
	OPRegistrationID uuid.UUID   `json:"op_registration_id"`
	OPNumber         string      `json:"op_number"`
	Items            []*BillItem `json:"items"`
	Subtotal         float64     `json:"subtotal"`

	sources []*Billable
}
