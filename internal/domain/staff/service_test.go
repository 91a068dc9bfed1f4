package staff

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carepoint/opd/internal/platform/auth"
	"github.com/carepoint/opd/internal/platform/db"
)

// -- Mock Repository --

type mockUserRepo struct {
	users map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	for _, existing := range m.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return ErrUsernameTaken
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = time.Now()
	m.users[u.ID] = u
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return u, nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockUserRepo) Update(_ context.Context, u *User) error {
	if _, ok := m.users[u.ID]; !ok {
		return db.ErrNotFound
	}
	m.users[u.ID] = u
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return db.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *mockUserRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*User, int, error) {
	var result []*User
	for _, u := range m.users {
		if role, ok := params["role"]; ok && u.Role != role {
			continue
		}
		if active, ok := params["active"]; ok && u.Active != (active == "true") {
			continue
		}
		result = append(result, u)
	}
	total := len(result)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return result[offset:end], total, nil
}

var testKey = []byte("staff-test-signing-key-0123456789")

func newTestService() *Service {
	return NewService(newMockUserRepo(), auth.NewTokenIssuer(testKey, time.Hour, "opd"))
}

func mustCreate(t *testing.T, s *Service, username, role string) *User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), CreateUserRequest{
		Username: username, Password: "password123", FullName: "Test " + username, Role: role,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

func TestCreateUser(t *testing.T) {
	s := newTestService()
	u := mustCreate(t, s, "reception1", auth.RoleReceptionist)

	if u.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if !u.Active {
		t.Error("expected new user to be active")
	}
	if u.PasswordHash == "password123" || !auth.CheckPassword(u.PasswordHash, "password123") {
		t.Error("expected bcrypt hash of the password")
	}
}

func TestCreateUser_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  CreateUserRequest
	}{
		{"short username", CreateUserRequest{Username: "ab", Password: "password123", FullName: "A", Role: auth.RoleDoctor}},
		{"username with space", CreateUserRequest{Username: "dr rao", Password: "password123", FullName: "A", Role: auth.RoleDoctor}},
		{"short password", CreateUserRequest{Username: "drrao", Password: "short", FullName: "A", Role: auth.RoleDoctor}},
		{"missing name", CreateUserRequest{Username: "drrao", Password: "password123", Role: auth.RoleDoctor}},
		{"bad role", CreateUserRequest{Username: "drrao", Password: "password123", FullName: "A", Role: "nurse"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := newTestService().CreateUser(context.Background(), tt.req); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	s := newTestService()
	mustCreate(t, s, "pharma", auth.RolePharmacist)

	_, err := s.CreateUser(context.Background(), CreateUserRequest{
		Username: "PHARMA", Password: "password123", FullName: "Other", Role: auth.RolePharmacist,
	})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	s := newTestService()
	created := mustCreate(t, s, "drrao", auth.RoleDoctor)

	u, err := s.Authenticate(context.Background(), "drrao", "password123")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if u.ID != created.ID {
		t.Error("expected the created user")
	}

	if _, err := s.Authenticate(context.Background(), "drrao", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := s.Authenticate(context.Background(), "nobody", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestAuthenticate_InactiveUser(t *testing.T) {
	s := newTestService()
	u := mustCreate(t, s, "olddoc", auth.RoleDoctor)
	inactive := false
	if _, err := s.UpdateUser(context.Background(), u.ID, UpdateUserRequest{Active: &inactive}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	if _, err := s.Authenticate(context.Background(), "olddoc", "password123"); !errors.Is(err, ErrInactiveUser) {
		t.Errorf("expected ErrInactiveUser, got %v", err)
	}
}

func TestLogin_IssuesVerifiableToken(t *testing.T) {
	s := newTestService()
	u := mustCreate(t, s, "physio", auth.RolePhysiotherapist)

	resp, err := s.Login(context.Background(), LoginRequest{Username: "physio", Password: "password123"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected token")
	}
	if resp.User.ID != u.ID {
		t.Error("expected login response to carry the user")
	}
	if !resp.ExpiresAt.After(time.Now()) {
		t.Error("expected future expiry")
	}
}

func TestChangePassword(t *testing.T) {
	s := newTestService()
	u := mustCreate(t, s, "store1", auth.RoleStorekeeper)
	ctx := context.Background()

	if err := s.ChangePassword(ctx, u.ID, "wrong-current", "newpassword1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := s.ChangePassword(ctx, u.ID, "password123", "short"); err == nil {
		t.Error("expected error for short new password")
	}
	if err := s.ChangePassword(ctx, u.ID, "password123", "newpassword1"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := s.Authenticate(ctx, "store1", "newpassword1"); err != nil {
		t.Errorf("expected new password to work, got %v", err)
	}
}

func TestUpdateUser_InvalidRole(t *testing.T) {
	s := newTestService()
	u := mustCreate(t, s, "recep", auth.RoleReceptionist)
	role := "janitor"

	if _, err := s.UpdateUser(context.Background(), u.ID, UpdateUserRequest{Role: &role}); err == nil {
		t.Error("expected error for invalid role")
	}
}

func TestListDoctors_OnlyActiveDoctors(t *testing.T) {
	s := newTestService()
	mustCreate(t, s, "doc1", auth.RoleDoctor)
	d2 := mustCreate(t, s, "doc2", auth.RoleDoctor)
	mustCreate(t, s, "recep", auth.RoleReceptionist)
	inactive := false
	s.UpdateUser(context.Background(), d2.ID, UpdateUserRequest{Active: &inactive})

	docs, total, err := s.ListDoctors(context.Background(), "", 20, 0)
	if err != nil {
		t.Fatalf("ListDoctors: %v", err)
	}
	if total != 1 || len(docs) != 1 || docs[0].Username != "doc1" {
		t.Errorf("expected only doc1, got %d doctors", total)
	}
}

func TestActiveDoctor(t *testing.T) {
	s := newTestService()
	doc := mustCreate(t, s, "doc1", auth.RoleDoctor)
	recep := mustCreate(t, s, "recep", auth.RoleReceptionist)
	ctx := context.Background()

	if _, err := s.ActiveDoctor(ctx, doc.ID); err != nil {
		t.Errorf("expected doctor to pass, got %v", err)
	}
	if _, err := s.ActiveDoctor(ctx, recep.ID); !errors.Is(err, ErrNotDoctor) {
		t.Errorf("expected ErrNotDoctor for receptionist, got %v", err)
	}
	if _, err := s.ActiveDoctor(ctx, uuid.New()); !errors.Is(err, ErrNotDoctor) {
		t.Errorf("expected ErrNotDoctor for unknown id, got %v", err)
	}
}
