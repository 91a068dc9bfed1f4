//go:build integration

package integration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carepoint/opd/internal/domain/billing"
	"github.com/carepoint/opd/internal/domain/inventory"
	"github.com/carepoint/opd/internal/domain/outpatient"
	"github.com/carepoint/opd/internal/domain/prescription"
	"github.com/carepoint/opd/internal/domain/reporting"
	"github.com/carepoint/opd/internal/platform/auth"
)

func TestPatientCodesAreUnique(t *testing.T) {
	resetDB(t)
	s := newServices(globalPool)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		p := createPatient(t, s, "Patient")
		if !strings.HasPrefix(p.PatientID, "PT") || len(p.PatientID) != 8 {
			t.Errorf("unexpected patient code %q", p.PatientID)
		}
		if seen[p.PatientID] {
			t.Fatalf("duplicate patient code %q", p.PatientID)
		}
		seen[p.PatientID] = true
	}
}

func TestRegister_ConcurrentDesksGetDistinctNumbers(t *testing.T) {
	resetDB(t)
	s := newServices(globalPool)
	ctx := context.Background()
	doctor := createUser(t, s, "dr_concurrent", auth.RoleDoctor)
	desk := createUser(t, s, "desk_concurrent", auth.RoleReceptionist)

	const n = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		visits []*outpatient.Registration
		errs   []error
	)
	patients := make([]string, n)
	for i := range patients {
		patients[i] = createPatient(t, s, "Walk-in").PatientID
	}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(ref string) {
			defer wg.Done()
			reg, err := s.visits.Register(ctx, outpatient.RegisterRequest{Patient: ref, DoctorID: doctor.ID}, &desk.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			visits = append(visits, reg)
		}(patients[i])
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("register failed: %v", errs[0])
	}
	numbers := make(map[string]bool)
	tokens := make(map[int]bool)
	for _, v := range visits {
		numbers[v.OPNumber] = true
		tokens[v.TokenNumber] = true
	}
	if len(numbers) != n || len(tokens) != n {
		t.Errorf("expected %d distinct numbers and tokens, got %d and %d", n, len(numbers), len(tokens))
	}
	for i := 1; i <= n; i++ {
		if !tokens[i] {
			t.Errorf("token %d was not handed out", i)
		}
	}

	queue, err := s.visits.Queue(ctx, doctor.ID, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(queue) != n || queue[0].TokenNumber != 1 {
		t.Errorf("expected queue in token order, got %d entries", len(queue))
	}
}

func TestVisitLifecycle_DispenseAndBill(t *testing.T) {
	resetDB(t)
	s := newServices(globalPool)
	ctx := context.Background()

	doctor := createUser(t, s, "dr_flow", auth.RoleDoctor)
	desk := createUser(t, s, "desk_flow", auth.RoleReceptionist)
	pharmacist := createUser(t, s, "pharm_flow", auth.RolePharmacist)
	physio := createUser(t, s, "physio_flow", auth.RolePhysiotherapist)

	consult := &billing.Charge{Code: "CONSULT", Name: "Consultation", Category: billing.CategoryConsultation, Amount: 300}
	therapy := &billing.Charge{Code: "PT-IFT", Name: "IFT", Category: billing.CategoryTreatment, Amount: 250}
	for _, c := range []*billing.Charge{consult, therapy} {
		if err := s.billing.CreateCharge(ctx, c); err != nil {
			t.Fatalf("create charge: %v", err)
		}
	}
	med := createMedicine(t, s, "Paracetamol", 20)
	pt := createPatient(t, s, "Asha Rao")

	visit, err := s.visits.Register(ctx, outpatient.RegisterRequest{Patient: pt.PatientID, DoctorID: doctor.ID}, &desk.ID)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if visit.ConsultationFee != 300 {
		t.Errorf("expected fee from consultation charge, got %v", visit.ConsultationFee)
	}
	if !strings.HasPrefix(visit.OPNumber, "OP-") || visit.TokenNumber != 1 {
		t.Errorf("unexpected numbering %s token %d", visit.OPNumber, visit.TokenNumber)
	}

	rx, err := s.rx.Prescribe(ctx, visit.OPNumber, prescription.PrescribeRequest{
		Medicines: []prescription.MedicineOrder{
			{MedicineID: med.ID, Dosage: "1 tablet", Frequency: "twice daily", DurationDays: 5, Quantity: 10},
			{MedicineID: med.ID, Dosage: "1 tablet", Frequency: "at bedtime", DurationDays: 30, Quantity: 30},
		},
		Treatments: []prescription.TreatmentOrder{{TreatmentChargeID: &therapy.ID, Sessions: 2}},
	}, &doctor.ID)
	if err != nil {
		t.Fatalf("prescribe: %v", err)
	}

	served, err := s.rx.ServeMedicine(ctx, rx.Medicines[0].ID, &pharmacist.ID)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if served.Status != prescription.StatusServed || served.ServedBy == nil || *served.ServedBy != pharmacist.ID {
		t.Errorf("expected served with served_by, got %+v", served)
	}
	if got := stockOf(t, med.ID); got != 10 {
		t.Errorf("expected 10 left after dispensing, got %v", got)
	}

	_, err = s.rx.ServeMedicine(ctx, rx.Medicines[1].ID, &pharmacist.ID)
	if !errors.Is(err, inventory.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := stockOf(t, med.ID); got != 10 {
		t.Errorf("failed serve must not touch stock, got %v", got)
	}
	still, _ := s.rx.GetMedicinePrescription(ctx, rx.Medicines[1].ID)
	if still.Status != prescription.StatusPending {
		t.Errorf("failed serve must leave the order pending, got %s", still.Status)
	}

	pharmacyBill, err := s.billing.CreatePharmacyBill(ctx, visit.OPNumber, billing.VisitBillRequest{PaymentMethod: billing.PaymentCash}, &pharmacist.ID)
	if err != nil {
		t.Fatalf("pharmacy bill: %v", err)
	}
	if pharmacyBill.Total != 20 || len(pharmacyBill.Items) != 1 {
		t.Errorf("expected one line totalling 20, got %v with %d items", pharmacyBill.Total, len(pharmacyBill.Items))
	}
	if _, err := s.billing.CreatePharmacyBill(ctx, visit.OPNumber, billing.VisitBillRequest{PaymentMethod: billing.PaymentCash}, &pharmacist.ID); !errors.Is(err, billing.ErrNothingToBill) {
		t.Errorf("expected nothing left to bill, got %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := s.rx.RecordSession(ctx, rx.Treatments[0].ID, &physio.ID); err != nil {
			t.Fatalf("record session: %v", err)
		}
	}
	tr, _ := s.rx.GetTreatmentPrescription(ctx, rx.Treatments[0].ID)
	if tr.Status != prescription.StatusServed || tr.SessionsCompleted != 2 {
		t.Errorf("expected treatment served after last session, got %+v", tr)
	}

	if _, err := s.visits.Complete(ctx, visit.ID, &doctor.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	serviceBill, err := s.billing.CreateServiceBill(ctx, visit.OPNumber, billing.VisitBillRequest{Discount: 50, PaymentMethod: billing.PaymentUPI}, &desk.ID)
	if err != nil {
		t.Fatalf("service bill: %v", err)
	}
	if serviceBill.Total != 750 {
		t.Errorf("expected 300 + 2x250 - 50 = 750, got %v", serviceBill.Total)
	}

	now := time.Now()
	rng := reporting.Range{From: now.AddDate(0, 0, -1), To: now.AddDate(0, 0, 1)}
	revenue, err := s.reports.Revenue(ctx, rng)
	if err != nil {
		t.Fatalf("revenue: %v", err)
	}
	if revenue.Bills != 2 || revenue.Total != 770 {
		t.Errorf("expected 2 bills totalling 770, got %d / %v", revenue.Bills, revenue.Total)
	}
	dispensing, err := s.reports.Dispensing(ctx, rng)
	if err != nil {
		t.Fatal(err)
	}
	if len(dispensing.Rows) != 1 || dispensing.Rows[0].Quantity != 10 {
		t.Errorf("unexpected dispensing rows %+v", dispensing.Rows)
	}
}

func TestCloseDay_CancelsEarlierPendingVisits(t *testing.T) {
	resetDB(t)
	s := newServices(globalPool)
	ctx := context.Background()
	doctor := createUser(t, s, "dr_close", auth.RoleDoctor)
	desk := createUser(t, s, "desk_close", auth.RoleReceptionist)

	old, err := s.visits.Register(ctx, outpatient.RegisterRequest{Patient: createPatient(t, s, "Old").PatientID, DoctorID: doctor.ID}, &desk.ID)
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := s.visits.Register(ctx, outpatient.RegisterRequest{Patient: createPatient(t, s, "New").PatientID, DoctorID: doctor.ID}, &desk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := globalPool.Exec(ctx, `UPDATE op_registrations SET visit_date = visit_date - 1 WHERE id = $1`, old.ID); err != nil {
		t.Fatal(err)
	}

	n, err := s.visits.CloseDay(ctx)
	if err != nil {
		t.Fatalf("close day: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 closed visit, got %d", n)
	}
	got, _ := s.visits.GetRegistration(ctx, old.ID)
	if got.Status != outpatient.StatusCancelled || got.CancelledReason == nil || *got.CancelledReason != outpatient.DayClosedReason {
		t.Errorf("expected day-closed cancellation, got %+v", got)
	}
	kept, _ := s.visits.GetRegistration(ctx, fresh.ID)
	if kept.Status != outpatient.StatusPending {
		t.Errorf("today's visit must stay pending, got %s", kept.Status)
	}
}

func TestStockAdjustment_Ledger(t *testing.T) {
	resetDB(t)
	s := newServices(globalPool)
	ctx := context.Background()
	keeper := createUser(t, s, "store_ledger", auth.RoleStorekeeper)
	med := createMedicine(t, s, "Cetirizine", 50)

	tx, err := s.inventory.RecordMedicineTransaction(ctx, med.ID, inventory.TransactionRequest{Type: inventory.TxAdjustment, Quantity: 42}, &keeper.ID)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if tx.BalanceAfter != 42 || tx.Quantity != -8 {
		t.Errorf("expected balance 42 and delta -8, got %v / %v", tx.BalanceAfter, tx.Quantity)
	}

	_, err = s.inventory.RecordMedicineTransaction(ctx, uuid.New(), inventory.TransactionRequest{Type: inventory.TxIn, Quantity: 1}, &keeper.ID)
	if !errors.Is(err, inventory.ErrNoStockItem) {
		t.Errorf("expected ErrNoStockItem, got %v", err)
	}

	var ledger int
	if err := globalPool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_transactions`).Scan(&ledger); err != nil {
		t.Fatal(err)
	}
	if ledger != 2 {
		t.Errorf("expected opening stock and adjustment in the ledger, got %d rows", ledger)
	}
}
