package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patients table. PatientID is the human-facing
// registration code printed on tickets and bills.
type Patient struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    string     `db:"patient_id" json:"patient_id"`
	Name         string     `db:"name" json:"name"`
	Gender       string     `db:"gender" json:"gender"`
	DateOfBirth  *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Age          *int       `db:"age" json:"age,omitempty"`
	Phone        *string    `db:"phone" json:"phone,omitempty"`
	Address      *string    `db:"address" json:"address,omitempty"`
	GuardianName *string    `db:"guardian_name" json:"guardian_name,omitempty"`
	BloodGroup   *string    `db:"blood_group" json:"blood_group,omitempty"`
	CreatedBy    *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// AgeOn returns the recorded age, or the age derived from the birth date.
func (p *Patient) AgeOn(day time.Time) int {
	if p.DateOfBirth != nil {
		return yearsBetween(*p.DateOfBirth, day)
	}
	if p.Age != nil {
		return *p.Age
	}
	return 0
}

func yearsBetween(from, to time.Time) int {
	years := to.Year() - from.Year()
	if to.YearDay() < from.YearDay() {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
