package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carepoint/opd/internal/platform/apperr"
	"github.com/carepoint/opd/internal/platform/db"
)

var (
	ErrChargeExists  = errors.New("charge code already exists")
	ErrChargeInUse   = errors.New("charge is referenced by bills or prescriptions")
	ErrBillCancelled = errors.New("bill is already cancelled")
	ErrAlreadyBilled = errors.New("order was billed by another request")
	ErrNothingToBill = errors.New("nothing to bill for this visit")
)

var validCategories = map[string]bool{
	CategoryConsultation: true,
	CategoryProcedure:    true,
	CategoryTreatment:    true,
	CategoryLab:          true,
	CategoryMisc:         true,
}

var validBillTypes = map[string]bool{
	BillPharmacy: true,
	BillService:  true,
}

var validPaymentMethods = map[string]bool{
	PaymentCash:      true,
	PaymentCard:      true,
	PaymentUPI:       true,
	PaymentInsurance: true,
}

// FormatBillNumber renders the printed bill number: BILL-20240131-0042.
func FormatBillNumber(day time.Time, seq int) string {
	return fmt.Sprintf("BILL-%s-%04d", day.Format("20060102"), seq)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type Service struct {
	charges ChargeRepository
	bills   BillRepository
	tx      db.Transactor
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(charges ChargeRepository, bills BillRepository, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{charges: charges, bills: bills, tx: tx, logger: logger, now: time.Now}
}

func (s *Service) today() time.Time {
	y, m, d := s.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// -- Charges --

func (s *Service) CreateCharge(ctx context.Context, c *Charge) error {
	if err := validateCharge(c); err != nil {
		return err
	}
	c.Active = true
	return s.charges.Create(ctx, c)
}

func (s *Service) GetCharge(ctx context.Context, id uuid.UUID) (*Charge, error) {
	return s.charges.GetByID(ctx, id)
}

func (s *Service) GetChargeByCode(ctx context.Context, code string) (*Charge, error) {
	return s.charges.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

func (s *Service) UpdateCharge(ctx context.Context, c *Charge) error {
	if err := validateCharge(c); err != nil {
		return err
	}
	return s.charges.Update(ctx, c)
}

func (s *Service) DeleteCharge(ctx context.Context, id uuid.UUID) error {
	return s.charges.Delete(ctx, id)
}

func (s *Service) SearchCharges(ctx context.Context, params map[string]string, limit, offset int) ([]*Charge, int, error) {
	return s.charges.Search(ctx, params, limit, offset)
}

// ConsultationFee returns the amount of the first active consultation charge.
func (s *Service) ConsultationFee(ctx context.Context) (float64, bool, error) {
	c, err := s.charges.FirstActive(ctx, CategoryConsultation)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return c.Amount, true, nil
}

func validateCharge(c *Charge) error {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	c.Name = strings.TrimSpace(c.Name)
	c.Category = strings.ToLower(strings.TrimSpace(c.Category))
	if c.Code == "" {
		return apperr.Invalid("code is required")
	}
	if strings.ContainsAny(c.Code, " \t") {
		return apperr.Invalid("code must not contain spaces")
	}
	if c.Name == "" {
		return apperr.Invalid("name is required")
	}
	if !validCategories[c.Category] {
		return apperr.Invalidf("invalid category: %s", c.Category)
	}
	if c.Amount < 0 {
		return apperr.Invalid("amount must not be negative")
	}
	c.Amount = round2(c.Amount)
	return nil
}

// -- Bills --

// CreateBill stores a manually itemised bill.
func (s *Service) CreateBill(ctx context.Context, req CreateBillRequest, actor *uuid.UUID) (*Bill, error) {
	if !validBillTypes[req.BillType] {
		return nil, apperr.Invalidf("invalid bill_type: %s", req.BillType)
	}
	if req.PatientID == uuid.Nil {
		return nil, apperr.Invalid("patient_id is required")
	}
	if len(req.Items) == 0 {
		return nil, apperr.Invalid("at least one item is required")
	}

	items := make([]*BillItem, 0, len(req.Items))
	for i, in := range req.Items {
		it, err := s.itemFromInput(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		items = append(items, it)
	}

	b := &Bill{
		BillType:         req.BillType,
		PatientID:        req.PatientID,
		OPRegistrationID: req.OPRegistrationID,
		Items:            items,
		Discount:         req.Discount,
		PaymentMethod:    req.PaymentMethod,
		CreatedBy:        actor,
	}
	if err := price(b); err != nil {
		return nil, err
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.insert(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) itemFromInput(ctx context.Context, in ItemInput) (*BillItem, error) {
	it := &BillItem{
		Description: strings.TrimSpace(in.Description),
		ChargeID:    in.ChargeID,
		MedicineID:  in.MedicineID,
		Quantity:    in.Quantity,
		UnitPrice:   in.UnitPrice,
	}
	if in.ChargeID != nil {
		ch, err := s.charges.GetByID(ctx, *in.ChargeID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return nil, apperr.Invalidf("charge %s not found", *in.ChargeID)
			}
			return nil, err
		}
		if it.Description == "" {
			it.Description = ch.Name
		}
		if it.UnitPrice == 0 {
			it.UnitPrice = ch.Amount
		}
	}
	if it.Description == "" {
		return nil, apperr.Invalid("description is required")
	}
	return it, nil
}

// price validates the lines and fills line numbers and amounts.
func price(b *Bill) error {
	if !validPaymentMethods[b.PaymentMethod] {
		return apperr.Invalidf("invalid payment_method: %s", b.PaymentMethod)
	}
	if len(b.Items) == 0 {
		return ErrNothingToBill
	}
	var subtotal float64
	for i, it := range b.Items {
		it.Quantity = round2(it.Quantity)
		it.UnitPrice = round2(it.UnitPrice)
		if it.Quantity <= 0 {
			return apperr.Invalidf("items[%d]: quantity must be positive", i)
		}
		if it.UnitPrice < 0 {
			return apperr.Invalidf("items[%d]: unit_price must not be negative", i)
		}
		it.LineNo = i + 1
		it.Amount = round2(it.Quantity * it.UnitPrice)
		subtotal += it.Amount
	}
	b.Subtotal = round2(subtotal)
	b.Discount = round2(b.Discount)
	if b.Discount < 0 || b.Discount > b.Subtotal {
		return apperr.Invalidf("discount must be between 0 and %.2f", b.Subtotal)
	}
	b.Total = round2(b.Subtotal - b.Discount)
	return nil
}

// insert numbers and stores b. It must run inside a transaction.
func (s *Service) insert(ctx context.Context, b *Bill) error {
	b.BillDate = s.today()
	b.Status = StatusPaid
	if err := s.bills.LockDay(ctx, b.BillDate); err != nil {
		return err
	}
	seq, err := s.bills.NextSequence(ctx, b.BillDate)
	if err != nil {
		return fmt.Errorf("allocate bill number: %w", err)
	}
	b.DailySeq = seq
	b.BillNumber = FormatBillNumber(b.BillDate, seq)
	return s.bills.Create(ctx, b)
}

// DraftPharmacyBill previews the bill for a visit's dispensed, unbilled
// medicines.
func (s *Service) DraftPharmacyBill(ctx context.Context, visitRef string) (*Draft, error) {
	return s.draft(ctx, visitRef, BillPharmacy)
}

// DraftServiceBill previews the bill for a visit's consultation fee and
// completed, unbilled treatments.
func (s *Service) DraftServiceBill(ctx context.Context, visitRef string) (*Draft, error) {
	return s.draft(ctx, visitRef, BillService)
}

func (s *Service) draft(ctx context.Context, visitRef, billType string) (*Draft, error) {
	v, err := s.bills.Visit(ctx, visitRef)
	if err != nil {
		return nil, err
	}

	var sources []*Billable
	switch billType {
	case BillPharmacy:
		sources, err = s.bills.UnbilledMedicines(ctx, v.ID)
		if err != nil {
			return nil, err
		}
	case BillService:
		if v.Status != "cancelled" && v.ConsultationFee > 0 && v.ConsultationBillID == nil {
			sources = append(sources, &Billable{
				Source:      SourceConsultation,
				SourceID:    v.ID,
				Description: "Consultation " + v.OPNumber,
				Quantity:    1,
				UnitPrice:   v.ConsultationFee,
			})
		}
		treatments, err := s.bills.UnbilledTreatments(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		sources = append(sources, treatments...)
	}

	d := &Draft{
		BillType:         billType,
		PatientID:        v.PatientID,
		OPRegistrationID: v.ID,
		OPNumber:         v.OPNumber,
		Items:            []*BillItem{},
		sources:          sources,
	}
	var subtotal float64
	for i, src := range sources {
		it := &BillItem{
			LineNo:      i + 1,
			Description: src.Description,
			ChargeID:    src.ChargeID,
			MedicineID:  src.MedicineID,
			Quantity:    round2(src.Quantity),
			UnitPrice:   round2(src.UnitPrice),
		}
		it.Amount = round2(it.Quantity * it.UnitPrice)
		subtotal += it.Amount
		d.Items = append(d.Items, it)
	}
	d.Subtotal = round2(subtotal)
	return d, nil
}

// CreatePharmacyBill bills every dispensed, unbilled medicine of a visit and
// links the prescriptions to the new bill.
func (s *Service) CreatePharmacyBill(ctx context.Context, visitRef string, req VisitBillRequest, actor *uuid.UUID) (*Bill, error) {
	return s.billVisit(ctx, visitRef, BillPharmacy, req, actor)
}

// CreateServiceBill bills the consultation fee and completed treatments of a
// visit.
func (s *Service) CreateServiceBill(ctx context.Context, visitRef string, req VisitBillRequest, actor *uuid.UUID) (*Bill, error) {
	return s.billVisit(ctx, visitRef, BillService, req, actor)
}

func (s *Service) billVisit(ctx context.Context, visitRef, billType string, req VisitBillRequest, actor *uuid.UUID) (*Bill, error) {
	var b *Bill
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		d, err := s.draft(ctx, visitRef, billType)
		if err != nil {
			return err
		}
		if len(d.sources) == 0 {
			return ErrNothingToBill
		}
		opID := d.OPRegistrationID
		b = &Bill{
			BillType:         billType,
			PatientID:        d.PatientID,
			OPRegistrationID: &opID,
			Items:            d.Items,
			Discount:         req.Discount,
			PaymentMethod:    req.PaymentMethod,
			CreatedBy:        actor,
			OPNumber:         d.OPNumber,
		}
		if err := price(b); err != nil {
			return err
		}
		if err := s.insert(ctx, b); err != nil {
			return err
		}
		return s.bills.MarkBilled(ctx, b.ID, d.sources)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("bill_number", b.BillNumber).
		Str("bill_type", billType).
		Str("op_number", b.OPNumber).
		Float64("total", b.Total).
		Msg("visit billed")
	return b, nil
}

func (s *Service) GetBill(ctx context.Context, id uuid.UUID) (*Bill, error) {
	return s.bills.GetByID(ctx, id)
}

// FindBill resolves a bill by UUID or bill number.
func (s *Service) FindBill(ctx context.Context, ref string) (*Bill, error) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		return s.bills.GetByID(ctx, id)
	}
	return s.bills.GetByNumber(ctx, strings.ToUpper(ref))
}

func (s *Service) SearchBills(ctx context.Context, params map[string]string, limit, offset int) ([]*Bill, int, error) {
	return s.bills.Search(ctx, params, limit, offset)
}

// CancelBill voids a paid bill. Orders billed on it become billable again.
func (s *Service) CancelBill(ctx context.Context, id uuid.UUID, reason string, actor *uuid.UUID) (*Bill, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Invalid("reason is required")
	}
	var b *Bill
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		b, err = s.bills.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == StatusCancelled {
			return ErrBillCancelled
		}
		b.CancelledReason = &reason
		if err := s.bills.Cancel(ctx, b); err != nil {
			return err
		}
		b.Status = StatusCancelled
		return s.bills.Release(ctx, b.ID)
	})
	if err != nil {
		return nil, err
	}
	ev := s.logger.Warn().Str("bill_number", b.BillNumber).Str("reason", reason)
	if actor != nil {
		ev = ev.Str("cancelled_by", actor.String())
	}
	ev.Msg("bill cancelled")
	return b, nil
}
