//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/carepoint/opd/internal/domain/billing"
	"github.com/carepoint/opd/internal/domain/inventory"
	"github.com/carepoint/opd/internal/domain/outpatient"
	"github.com/carepoint/opd/internal/domain/patient"
	"github.com/carepoint/opd/internal/domain/prescription"
	"github.com/carepoint/opd/internal/domain/reporting"
	"github.com/carepoint/opd/internal/domain/staff"
	"github.com/carepoint/opd/internal/platform/auth"
	"github.com/carepoint/opd/internal/platform/db"
)

// globalPool is the migrated database shared by every test, set in TestMain.
var globalPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	pool, cleanup, err := setupPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup postgres container: %v\n", err)
		os.Exit(1)
	}

	globalPool = pool
	code := m.Run()
	cleanup()
	os.Exit(code)
}

func setupPostgres(ctx context.Context) (*pgxpool.Pool, func(), error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("opdtest"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("start container: %w", err)
	}
	terminate := func() { _ = container.Terminate(context.Background()) }

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("connection string: %w", err)
	}

	pool, err := db.NewPool(ctx, dsn, db.PoolOptions{MaxConns: 10, ApplicationName: "opd-integration"})
	if err != nil {
		terminate()
		return nil, nil, err
	}
	if _, err := db.NewMigrator(pool, db.EmbeddedMigrations()).Up(ctx); err != nil {
		pool.Close()
		terminate()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	return pool, func() {
		pool.Close()
		terminate()
	}, nil
}

// resetDB empties every table so each test starts from a clean schema.
func resetDB(t *testing.T) {
	t.Helper()
	_, err := globalPool.Exec(context.Background(), `TRUNCATE
		bill_items, bills,
		physical_treatment_prescriptions, medicine_prescriptions,
		stock_transactions, stock_items, medicines, suppliers,
		op_registrations, charges, patients, users
		RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("reset database: %v", err)
	}
}

// services is the same wiring the server uses, over the test pool.
type services struct {
	staff     *staff.Service
	patients  *patient.Service
	visits    *outpatient.Service
	rx        *prescription.Service
	inventory *inventory.Service
	billing   *billing.Service
	reports   *reporting.Service
}

func newServices(pool *pgxpool.Pool) *services {
	tx := db.NewTransactor(pool)
	logger := zerolog.Nop()
	s := &services{}
	s.staff = staff.NewService(staff.NewUserRepo(pool), auth.NewTokenIssuer([]byte("integration-test-signing-key-0000"), time.Hour, "opd-test"))
	s.patients = patient.NewService(patient.NewRepo(pool))
	s.inventory = inventory.NewService(inventory.NewMedicineRepo(pool), inventory.NewSupplierRepo(pool), inventory.NewStockRepo(pool), tx, logger)
	s.billing = billing.NewService(billing.NewChargeRepo(pool), billing.NewBillRepo(pool), tx, logger)
	s.visits = outpatient.NewService(outpatient.NewRepo(pool), s.patients, s.staff, s.billing, tx, logger)
	s.rx = prescription.NewService(prescription.NewMedicineRepo(pool), prescription.NewTreatmentRepo(pool),
		s.visits, s.inventory, s.inventory, s.billing, tx, logger)
	s.reports = reporting.NewService(reporting.NewRepo(pool), logger)
	return s
}

func createUser(t *testing.T, s *services, username, role string) *staff.User {
	t.Helper()
	dept := "General Medicine"
	u, err := s.staff.CreateUser(context.Background(), staff.CreateUserRequest{
		Username:   username,
		Password:   "integration-pass",
		FullName:   "Test " + username,
		Role:       role,
		Department: &dept,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func createPatient(t *testing.T, s *services, name string) *patient.Patient {
	t.Helper()
	age := 34
	p := &patient.Patient{Name: name, Gender: "female", Age: &age}
	if err := s.patients.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return p
}

func createMedicine(t *testing.T, s *services, name string, stock float64) *inventory.Medicine {
	t.Helper()
	ctx := context.Background()
	m := &inventory.Medicine{Name: name, Form: "tablet", Strength: "500mg", Unit: "tablet", UnitPrice: 2, ReorderLevel: 5}
	if err := s.inventory.CreateMedicine(ctx, m); err != nil {
		t.Fatalf("create medicine: %v", err)
	}
	if stock > 0 {
		if _, err := s.inventory.RecordMedicineTransaction(ctx, m.ID, inventory.TransactionRequest{Type: inventory.TxIn, Quantity: stock}, nil); err != nil {
			t.Fatalf("stock in: %v", err)
		}
	}
	return m
}

func stockOf(t *testing.T, medicineID fmt.Stringer) float64 {
	t.Helper()
	var qty float64
	err := globalPool.QueryRow(context.Background(),
		`SELECT quantity::float8 FROM stock_items WHERE medicine_id = $1`, medicineID.String()).Scan(&qty)
	if err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return qty
}
