package registry

import (
	"errors"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/models"
)

func roster() []models.Agent {
	return []models.Agent{
		{ID: "a1", Name: "One", Expertise: []string{"sales"}, Languages: []string{"en"}, MaxLoad: 2},
		{ID: "a2", Name: "Two", Expertise: []string{"service"}, Languages: []string{"hi"}, MaxLoad: 1, Status: models.AgentOffline},
		{ID: "a3", Name: "Three", Expertise: []string{"finance"}, Languages: []string{"en"}, MaxLoad: 3},
	}
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(roster())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func mustGet(t *testing.T, r *Registry, id string) models.Agent {
	t.Helper()
	a, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return a
}

// checkInvariant asserts 0 <= CurrentLoad <= MaxLoad for every agent.
func checkInvariant(t *testing.T, r *Registry) {
	t.Helper()
	for _, a := range r.List() {
		if a.CurrentLoad < 0 || a.CurrentLoad > a.MaxLoad {
			t.Errorf("agent %s load %d outside [0, %d]", a.ID, a.CurrentLoad, a.MaxLoad)
		}
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		agents []models.Agent
		want   string
	}{
		{"missing id", []models.Agent{{ID: "", MaxLoad: 1}}, "id is required"},
		{"duplicate id", []models.Agent{{ID: "x", MaxLoad: 1}, {ID: "x", MaxLoad: 1}}, "duplicate"},
		{"zero max load", []models.Agent{{ID: "x", MaxLoad: 0}}, "max load must be positive"},
		{"load above max", []models.Agent{{ID: "x", MaxLoad: 1, CurrentLoad: 2}}, "outside"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.agents)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestNew_DefaultsStatusAndCopiesInput(t *testing.T) {
	in := roster()
	r, err := New(in)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in[0].Expertise[0] = "mutated"
	a := mustGet(t, r, "a1")
	if a.Status != models.AgentAvailable {
		t.Errorf("Status = %q, want available", a.Status)
	}
	if !slices.Equal(a.Expertise, []string{"sales"}) {
		t.Errorf("Expertise = %v, want [sales]", a.Expertise)
	}
	if a.LastActivity.IsZero() {
		t.Error("LastActivity not set")
	}
}

func TestListAvailable(t *testing.T) {
	r := newRegistry(t)

	ids := func() []string {
		var out []string
		for _, a := range r.ListAvailable() {
			out = append(out, a.ID)
		}
		return out
	}
	// Offline a2 excluded, roster order kept.
	if got := ids(); !slices.Equal(got, []string{"a1", "a3"}) {
		t.Errorf("available = %v, want [a1 a3]", got)
	}

	for range 2 {
		if err := r.ReserveCapacity("a1"); err != nil {
			t.Fatal(err)
		}
	}
	if got := ids(); !slices.Equal(got, []string{"a3"}) {
		t.Errorf("available = %v, want [a3] with a1 full", got)
	}

	if err := r.SetStatus("a2", models.AgentAvailable); err != nil {
		t.Fatal(err)
	}
	if got := ids(); !slices.Equal(got, []string{"a2", "a3"}) {
		t.Errorf("available = %v, want [a2 a3]", got)
	}
}

func TestReserveCapacity(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r, err := New(roster(), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := r.ReserveCapacity("a1"); err != nil {
		t.Fatalf("ReserveCapacity: %v", err)
	}
	a := mustGet(t, r, "a1")
	if a.CurrentLoad != 1 {
		t.Errorf("CurrentLoad = %d, want 1", a.CurrentLoad)
	}
	if !a.LastActivity.Equal(now) {
		t.Errorf("LastActivity = %v, want %v", a.LastActivity, now)
	}
	checkInvariant(t, r)
}

func TestReserveCapacity_AtMaxFailsWithoutMutation(t *testing.T) {
	r := newRegistry(t)
	for range 2 {
		if err := r.ReserveCapacity("a1"); err != nil {
			t.Fatal(err)
		}
	}
	before := mustGet(t, r, "a1")

	if err := r.ReserveCapacity("a1"); !errors.Is(err, models.ErrCapacityExceeded) {
		t.Errorf("err = %v, want ErrCapacityExceeded", err)
	}

	if after := mustGet(t, r, "a1"); !reflect.DeepEqual(before, after) {
		t.Errorf("agent changed on failed reserve:\nbefore %+v\nafter  %+v", before, after)
	}
	checkInvariant(t, r)
}

func TestReserveCapacity_NotAvailable(t *testing.T) {
	r := newRegistry(t)
	if err := r.ReserveCapacity("a2"); !errors.Is(err, models.ErrCapacityExceeded) {
		t.Errorf("err = %v, want ErrCapacityExceeded", err)
	}
	if a := mustGet(t, r, "a2"); a.CurrentLoad != 0 {
		t.Errorf("CurrentLoad = %d, want 0", a.CurrentLoad)
	}
}

func TestReserveCapacity_Unknown(t *testing.T) {
	r := newRegistry(t)
	if err := r.ReserveCapacity("ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("ReserveCapacity err = %v, want ErrNotFound", err)
	}
	if err := r.ReleaseCapacity("ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("ReleaseCapacity err = %v, want ErrNotFound", err)
	}
}

func TestReleaseCapacity_FlooredAtZero(t *testing.T) {
	r := newRegistry(t)
	if err := r.ReserveCapacity("a3"); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if err := r.ReleaseCapacity("a3"); err != nil {
			t.Fatal(err)
		}
	}

	if a := mustGet(t, r, "a3"); a.CurrentLoad != 0 {
		t.Errorf("CurrentLoad = %d, want 0", a.CurrentLoad)
	}
	checkInvariant(t, r)
}

func TestSetStatus(t *testing.T) {
	r := newRegistry(t)

	if err := r.SetStatus("a1", models.AgentOnBreak); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if a := mustGet(t, r, "a1"); a.Status != models.AgentOnBreak {
		t.Errorf("Status = %q, want break", a.Status)
	}

	if err := r.SetStatus("ghost", models.AgentBusy); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := r.SetStatus("a1", models.AgentStatus("napping")); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestSetStatus_KeepsLoad(t *testing.T) {
	r := newRegistry(t)
	if err := r.ReserveCapacity("a1"); err != nil {
		t.Fatal(err)
	}
	if err := r.SetStatus("a1", models.AgentOffline); err != nil {
		t.Fatal(err)
	}

	if a := mustGet(t, r, "a1"); a.CurrentLoad != 1 {
		t.Errorf("CurrentLoad = %d, want 1", a.CurrentLoad)
	}
	if err := r.ReserveCapacity("a1"); !errors.Is(err, models.ErrCapacityExceeded) {
		t.Errorf("err = %v, want ErrCapacityExceeded", err)
	}
}

func TestCounts(t *testing.T) {
	r := newRegistry(t)
	byStatus, withCapacity := r.Counts()
	if byStatus[models.AgentAvailable] != 2 || byStatus[models.AgentOffline] != 1 || byStatus[models.AgentBusy] != 0 {
		t.Errorf("byStatus = %v", byStatus)
	}
	if withCapacity != 2 {
		t.Errorf("withCapacity = %d, want 2", withCapacity)
	}
	if r.Len() != 3 {
		t.Errorf("Len = %d, want 3", r.Len())
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	r := newRegistry(t)
	a := mustGet(t, r, "a1")
	a.CurrentLoad = 99
	a.Expertise[0] = "changed"

	again := mustGet(t, r, "a1")
	if again.CurrentLoad != 0 || again.Expertise[0] != "sales" {
		t.Errorf("registry changed through a copy: %+v", again)
	}
}

func TestConcurrentReserveRelease(t *testing.T) {
	r := newRegistry(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	reserved := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.ReserveCapacity("a3")
			if err == nil {
				mu.Lock()
				reserved++
				mu.Unlock()
				return
			}
			if !errors.Is(err, models.ErrCapacityExceeded) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if reserved != 3 {
		t.Errorf("reserved = %d, want exactly MaxLoad (3)", reserved)
	}
	checkInvariant(t, r)

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.ReleaseCapacity("a3")
		}()
	}
	wg.Wait()
	checkInvariant(t, r)
	if a := mustGet(t, r, "a3"); a.CurrentLoad != 0 {
		t.Errorf("CurrentLoad = %d, want 0", a.CurrentLoad)
	}
}
