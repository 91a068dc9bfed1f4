package patient

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carepoint/opd/internal/platform/db"
)

type mockRepo struct {
	mu       sync.Mutex
	seq      int64
	patients map[uuid.UUID]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) NextSequence(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq, nil
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.patients {
		if existing.PatientID == p.PatientID {
			return errors.New("duplicate patient_id")
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) GetByCode(_ context.Context, code string) (*Patient, error) {
	for _, p := range m.patients {
		if p.PatientID == code {
			return p, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return db.ErrNotFound
	}
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.patients {
		if name, ok := params["name"]; ok && !strings.HasPrefix(strings.ToLower(p.Name), strings.ToLower(name)) {
			continue
		}
		result = append(result, p)
	}
	return result, len(result), nil
}

func newTestService() *Service {
	return NewService(newMockRepo())
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestCreatePatient_AssignsUniqueCode(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 25; i++ {
		p := &Patient{Name: "Patient", Gender: "female"}
		if err := s.CreatePatient(ctx, p); err != nil {
			t.Fatalf("CreatePatient: %v", err)
		}
		if !strings.HasPrefix(p.PatientID, "PT") || len(p.PatientID) != 8 {
			t.Errorf("unexpected code format %q", p.PatientID)
		}
		if seen[p.PatientID] {
			t.Fatalf("duplicate patient code %s", p.PatientID)
		}
		seen[p.PatientID] = true
	}
}

func TestCreatePatient_ConcurrentCodesUnique(t *testing.T) {
	s := newTestService()
	var wg sync.WaitGroup
	codes := make(chan string, 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := &Patient{Name: "Concurrent", Gender: "male"}
			if err := s.CreatePatient(context.Background(), p); err != nil {
				t.Errorf("CreatePatient: %v", err)
				return
			}
			codes <- p.PatientID
		}()
	}
	wg.Wait()
	close(codes)

	seen := make(map[string]bool)
	for c := range codes {
		if seen[c] {
			t.Fatalf("duplicate code %s", c)
		}
		seen[c] = true
	}
}

func TestFormatCode(t *testing.T) {
	tests := map[int64]string{
		1:       "PT000001",
		4821:    "PT004821",
		1234567: "PT1234567",
	}
	for n, want := range tests {
		if got := FormatCode(n); got != want {
			t.Errorf("FormatCode(%d) = %s, want %s", n, got, want)
		}
	}
}

func TestCreatePatient_Validation(t *testing.T) {
	future := time.Now().AddDate(1, 0, 0)
	tests := []struct {
		name string
		p    Patient
	}{
		{"missing name", Patient{Gender: "male"}},
		{"blank name", Patient{Name: "   ", Gender: "male"}},
		{"bad gender", Patient{Name: "A", Gender: "unknown"}},
		{"future dob", Patient{Name: "A", Gender: "male", DateOfBirth: &future}},
		{"negative age", Patient{Name: "A", Gender: "male", Age: intPtr(-1)}},
		{"bad blood group", Patient{Name: "A", Gender: "male", BloodGroup: strPtr("Z+")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.p
			if err := newTestService().CreatePatient(context.Background(), &p); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCreatePatient_NormalizesFields(t *testing.T) {
	s := newTestService()
	p := &Patient{Name: "  Meera  ", Gender: "Female", BloodGroup: strPtr("ab+")}
	if err := s.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	if p.Name != "Meera" || p.Gender != "female" || *p.BloodGroup != "AB+" {
		t.Errorf("fields not normalized: %+v", p)
	}
}

func TestCreatePatient_DerivesAgeFromDOB(t *testing.T) {
	s := newTestService()
	s.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	dob := time.Date(1990, 7, 15, 0, 0, 0, 0, time.UTC)

	p := &Patient{Name: "Ravi", Gender: "male", DateOfBirth: &dob}
	if err := s.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	if p.Age == nil || *p.Age != 33 {
		t.Errorf("expected age 33, got %v", p.Age)
	}
}

func TestLookup_ByIDAndCode(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	p := &Patient{Name: "Kiran", Gender: "other"}
	s.CreatePatient(ctx, p)

	byID, err := s.Lookup(ctx, p.ID.String())
	if err != nil || byID.ID != p.ID {
		t.Errorf("lookup by id failed: %v", err)
	}
	byCode, err := s.Lookup(ctx, strings.ToLower(p.PatientID))
	if err != nil || byCode.ID != p.ID {
		t.Errorf("lookup by code failed: %v", err)
	}
	if _, err := s.Lookup(ctx, "PT999999"); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePatient_KeepsCode(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	p := &Patient{Name: "Old", Gender: "male"}
	s.CreatePatient(ctx, p)

	upd := &Patient{ID: p.ID, PatientID: "PT999999", Name: "New", Gender: "male"}
	if err := s.UpdatePatient(ctx, upd); err != nil {
		t.Fatalf("UpdatePatient: %v", err)
	}
	if upd.PatientID != p.PatientID {
		t.Errorf("patient code must not change: got %s want %s", upd.PatientID, p.PatientID)
	}
}

func TestUpdatePatient_NotFound(t *testing.T) {
	err := newTestService().UpdatePatient(context.Background(), &Patient{ID: uuid.New(), Name: "X", Gender: "male"})
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAgeOn(t *testing.T) {
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	dob := time.Date(2000, 3, 11, 0, 0, 0, 0, time.UTC)
	p := &Patient{DateOfBirth: &dob}
	if got := p.AgeOn(day); got != 23 {
		t.Errorf("expected 23 before birthday, got %d", got)
	}
	p = &Patient{Age: intPtr(40)}
	if got := p.AgeOn(day); got != 40 {
		t.Errorf("expected recorded age 40, got %d", got)
	}
}
