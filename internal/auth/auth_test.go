package auth

import (
	"path/filepath"
	"testing"
)

type memRepo struct{ users []User }

func (m *memRepo) LoadAll() ([]User, error) { return append([]User{}, m.users...), nil }
func (m *memRepo) Upsert(u User) error {
	for i, x := range m.users {
		if x.ID == u.ID {
			m.users[i] = u
			return nil
		}
	}
	m.users = append(m.users, u)
	return nil
}
func (m *memRepo) Remove(id int64) error {
	out := make([]User, 0, len(m.users))
	for _, x := range m.users {
		if x.ID != id {
			out = append(out, x)
		}
	}
	m.users = out
	return nil
}

func TestServiceBasic(t *testing.T) {
	repo := &memRepo{users: []User{{ID: 10, Username: "finance_clerk"}}}
	svc, err := NewWithRepo(repo, []int64{20})
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	if !svc.IsAllowed(10) {
		t.Fatalf("repo preload not effective")
	}
	if !svc.IsAllowed(20) {
		t.Fatalf("initial env list not merged")
	}
	if svc.IsAllowed(30) {
		t.Fatalf("unexpected allowed")
	}

	if err := svc.Upsert(User{ID: 30, Username: "auditor"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !svc.IsAllowed(30) {
		t.Fatalf("upsert not effective")
	}
	if err := svc.Remove(10); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if svc.IsAllowed(10) {
		t.Fatalf("remove not effective")
	}
}

func TestFileRepositoryRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "allowlist.json")
	repo, err := NewFileRepository(p)
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := repo.Upsert(User{ID: 1, Username: "alice"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Upsert(User{ID: 2, Username: "bob"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Upsert(User{ID: 1, Username: "alice2"}); err != nil {
		t.Fatalf("upsert existing: %v", err)
	}

	users, err := repo.LoadAll()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("want 2 users, got %d", len(users))
	}

	if err := repo.Remove(1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	users, _ = repo.LoadAll()
	if len(users) != 1 || users[0].ID != 2 {
		t.Fatalf("unexpected users after remove: %+v", users)
	}
}
