package userstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vitadrop/vitaauth"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("user-%d", n)
	}
}

func newTestMemoryStore() *MemoryStore {
	clock := &stepClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewMemoryStore(WithClock(clock.Now), WithIDGenerator(sequentialIDs()))
}

func TestMemoryCreateAndLookup(t *testing.T) {
	s := newTestMemoryStore()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, vitaauth.CreateUserInput{
		FullName:     "Ayesha Rahman",
		Email:        " A@X.com ",
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID != "user-1" || u.Email != "a@x.com" {
		t.Fatalf("unexpected user %+v", u)
	}
	if u.Role != vitaauth.RoleDonor || u.Status != vitaauth.StatusActive {
		t.Fatalf("expected donor/active defaults, got %s/%s", u.Role, u.Status)
	}

	byEmail, err := s.GetUserByEmail(ctx, "a@X.COM")
	if err != nil || byEmail.ID != u.ID {
		t.Fatalf("GetUserByEmail = %+v, %v", byEmail, err)
	}
	byID, err := s.GetUserByID(ctx, u.ID)
	if err != nil || byID.Email != u.Email {
		t.Fatalf("GetUserByID = %+v, %v", byID, err)
	}
}

func TestMemoryDuplicateEmail(t *testing.T) {
	s := newTestMemoryStore()
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, vitaauth.CreateUserInput{FullName: "One", Email: "a@x.com"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := s.CreateUser(ctx, vitaauth.CreateUserInput{FullName: "Two", Email: "A@x.com"})
	if !errors.Is(err, vitaauth.ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestMemoryNotFound(t *testing.T) {
	s := newTestMemoryStore()
	ctx := context.Background()

	if _, err := s.GetUserByEmail(ctx, "nobody@x.com"); !errors.Is(err, vitaauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := s.GetUserByID(ctx, "missing"); !errors.Is(err, vitaauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := s.UpdatePasswordHash(ctx, "missing", "h"); !errors.Is(err, vitaauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	name := "X Y"
	if _, err := s.UpdateProfile(ctx, "missing", vitaauth.ProfilePatch{FullName: &name}); !errors.Is(err, vitaauth.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMemoryUpdateProfileOnlyTouchesPatchedFields(t *testing.T) {
	s := newTestMemoryStore()
	ctx := context.Background()

	u, _ := s.CreateUser(ctx, vitaauth.CreateUserInput{
		FullName:   "Before",
		Email:      "p@x.com",
		Phone:      "01700000000",
		BloodGroup: vitaauth.BloodOPos,
	})

	name := "After"
	loc := vitaauth.Location{Division: "Dhaka", District: "Dhaka"}
	got, err := s.UpdateProfile(ctx, u.ID, vitaauth.ProfilePatch{FullName: &name, Location: &loc})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if got.FullName != "After" || got.Location != loc {
		t.Fatalf("patch not applied: %+v", got)
	}
	if got.Phone != "01700000000" || got.BloodGroup != vitaauth.BloodOPos {
		t.Fatalf("unpatched fields changed: %+v", got)
	}
	if !got.UpdatedAt.After(u.UpdatedAt) {
		t.Fatal("expected UpdatedAt to advance")
	}
}

func TestMemoryListUsersOrderedByCreation(t *testing.T) {
	s := newTestMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := s.CreateUser(ctx, vitaauth.CreateUserInput{FullName: "User", Email: fmt.Sprintf("u%d@x.com", i)}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 5 {
		t.Fatalf("expected 5 users, got %d", len(users))
	}
	for i := 1; i < len(users); i++ {
		if users[i].CreatedAt.Before(users[i-1].CreatedAt) {
			t.Fatalf("users not ordered at %d", i)
		}
	}
}

func TestMemorySetStatusAndDelete(t *testing.T) {
	s := newTestMemoryStore()
	ctx := context.Background()

	u, _ := s.CreateUser(ctx, vitaauth.CreateUserInput{FullName: "Suspend Me", Email: "s@x.com"})
	if err := s.SetStatus(u.ID, vitaauth.StatusSuspended); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	got, _ := s.GetUserByID(ctx, u.ID)
	if got.Status != vitaauth.StatusSuspended {
		t.Fatalf("expected suspended, got %s", got.Status)
	}

	s.Delete(u.ID)
	if _, err := s.GetUserByEmail(ctx, "s@x.com"); !errors.Is(err, vitaauth.ErrUserNotFound) {
		t.Fatalf("expected deleted user to be gone, got %v", err)
	}
	if _, err := s.CreateUser(ctx, vitaauth.CreateUserInput{FullName: "Again", Email: "s@x.com"}); err != nil {
		t.Fatalf("email should be free after delete: %v", err)
	}
}
