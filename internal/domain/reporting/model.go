package reporting

import (
	"time"

	"github.com/google/uuid"
)

// Range is an inclusive span of calendar days.
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Count is a labelled tally.
type Count struct {
	Key   string `json:"key"`
	Total int    `json:"total"`
}

// DoctorCount tallies one doctor's registrations by status.
type DoctorCount struct {
	DoctorID   uuid.UUID `json:"doctor_id"`
	DoctorName string    `json:"doctor_name"`
	Total      int       `json:"total"`
	Served     int       `json:"served"`
	Pending    int       `json:"pending"`
	Cancelled  int       `json:"cancelled"`
}

// DailyCount tallies registrations on one visit date.
type DailyCount struct {
	Date      time.Time `json:"date"`
	Total     int       `json:"total"`
	Served    int       `json:"served"`
	Cancelled int       `json:"cancelled"`
}

type OPSummary struct {
	Range
	Total        int           `json:"total"`
	ByStatus     []Count       `json:"by_status"`
	ByDoctor     []DoctorCount `json:"by_doctor"`
	ByDepartment []Count       `json:"by_department"`
	Daily        []DailyCount  `json:"daily"`
}

// Amount sums paid bills under one key.
type Amount struct {
	Key   string  `json:"key"`
	Bills int     `json:"bills"`
	Total float64 `json:"total"`
}

// DailyRevenue is the paid total of one bill date split by bill type.
type DailyRevenue struct {
	Date     time.Time `json:"date"`
	Pharmacy float64   `json:"pharmacy"`
	Service  float64   `json:"service"`
	Total    float64   `json:"total"`
}

// RevenueSummary covers paid bills only. Cancelled bills are counted
// separately and excluded from every total.
type RevenueSummary struct {
	Range
	Bills          int            `json:"bills"`
	Subtotal       float64        `json:"subtotal"`
	Discount       float64        `json:"discount"`
	Total          float64        `json:"total"`
	CancelledBills int            `json:"cancelled_bills"`
	ByType         []Amount       `json:"by_type"`
	ByPayment      []Amount       `json:"by_payment"`
	Daily          []DailyRevenue `json:"daily"`
}

// DispensingRow is one medicine's served prescriptions in the range.
type DispensingRow struct {
	MedicineID    uuid.UUID `json:"medicine_id"`
	MedicineName  string    `json:"medicine_name"`
	Prescriptions int       `json:"prescriptions"`
	Quantity      float64   `json:"quantity"`
	Value         float64   `json:"value"`
}

type DispensingSummary struct {
	Range
	Rows []DispensingRow `json:"rows"`
}

// TreatmentRow is one treatment's prescriptions in the range.
type TreatmentRow struct {
	TreatmentName     string `json:"treatment_name"`
	Prescriptions     int    `json:"prescriptions"`
	Served            int    `json:"served"`
	Pending           int    `json:"pending"`
	Cancelled         int    `json:"cancelled"`
	Sessions          int    `json:"sessions"`
	SessionsCompleted int    `json:"sessions_completed"`
}

type TreatmentSummary struct {
	Range
	Rows []TreatmentRow `json:"rows"`
}

// StockRow is one stock item against its reorder level.
type StockRow struct {
	StockItemID  uuid.UUID `json:"stock_item_id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Unit         string    `json:"unit"`
	Quantity     float64   `json:"quantity"`
	ReorderLevel float64   `json:"reorder_level"`
	UnitCost     float64   `json:"unit_cost"`
	Value        float64   `json:"value"`
	Low          bool      `json:"low"`
}

type StockStatus struct {
	GeneratedAt time.Time  `json:"generated_at"`
	LowOnly     bool       `json:"low_only"`
	LowCount    int        `json:"low_count"`
	TotalValue  float64    `json:"total_value"`
	Rows        []StockRow `json:"rows"`
}
