package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/hms-scheduler/internal/platform/apperr"
	"github.com/ehr/hms-scheduler/internal/platform/db"
	"github.com/ehr/hms-scheduler/internal/platform/lock"
)

type stubUsage struct {
	usage map[uuid.UUID]Usage
	err   error
}

func (s *stubUsage) ResourceUsage(_ context.Context, id uuid.UUID) (Usage, error) {
	return s.usage[id], s.err
}

func newTestService() (*Service, *stubUsage) {
	usage := &stubUsage{usage: make(map[uuid.UUID]Usage)}
	svc := NewService(NewRepoMem(), db.NewMemTransactor(), lock.NewKeyedMutex(time.Second), usage)
	return svc, usage
}

func expectKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if !apperr.Is(err, kind) {
		t.Fatalf("expected %s, got %v", kind, err)
	}
}

func mustCreate(t *testing.T, svc *Service, ward, number int, typ ResourceType) *Resource {
	t.Helper()
	r := &Resource{Ward: ward, Number: number, Type: typ}
	if err := svc.Create(context.Background(), r); err != nil {
		t.Fatalf("create resource: %v", err)
	}
	return r
}

func TestService_CreateDefaults(t *testing.T) {
	svc, _ := newTestService()
	r := &Resource{Ward: 2, Number: 5, Type: "icu"}
	if err := svc.Create(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if r.Type != TypeICU {
		t.Errorf("type = %s, want ICU", r.Type)
	}
	if r.Availability != Available || r.CleaningStatus != Cleaned {
		t.Errorf("defaults = %s/%s", r.Availability, r.CleaningStatus)
	}
}

func TestService_CreateValidation(t *testing.T) {
	svc, _ := newTestService()
	tests := []struct {
		name string
		r    Resource
	}{
		{"missing ward", Resource{Number: 1, Type: TypeGeneral}},
		{"missing number", Resource{Ward: 1, Type: TypeGeneral}},
		{"bad type", Resource{Ward: 1, Number: 1, Type: "LAB"}},
		{"bad availability", Resource{Ward: 1, Number: 1, Type: TypeGeneral, Availability: "BROKEN"}},
		{"occupied", Resource{Ward: 1, Number: 1, Type: TypeGeneral, Availability: Occupied}},
		{"bad cleaning", Resource{Ward: 1, Number: 1, Type: TypeGeneral, CleaningStatus: "DUSTY"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.r
			expectKind(t, svc.Create(context.Background(), &r), apperr.KindValidation)
		})
	}
}

func TestService_CreateDuplicateWardNumber(t *testing.T) {
	svc, _ := newTestService()
	mustCreate(t, svc, 2, 5, TypeGeneral)
	err := svc.Create(context.Background(), &Resource{Ward: 2, Number: 5, Type: TypeICU})
	expectKind(t, err, apperr.KindValidation)

	// Same number in another ward is fine.
	mustCreate(t, svc, 3, 5, TypeGeneral)
}

func TestService_ListFilters(t *testing.T) {
	svc, _ := newTestService()
	mustCreate(t, svc, 1, 2, TypeGeneral)
	mustCreate(t, svc, 1, 1, TypeGeneral)
	mustCreate(t, svc, 2, 1, TypeICU)
	ot := mustCreate(t, svc, 9, 1, TypeOT)
	if _, err := svc.SetAvailability(context.Background(), ot.ID, Maintenance); err != nil {
		t.Fatal(err)
	}

	typ := TypeGeneral
	items, total, err := svc.List(context.Background(), Filter{Type: &typ}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || items[0].Number != 1 || items[1].Number != 2 {
		t.Errorf("general beds = %+v (total %d)", items, total)
	}

	m := Maintenance
	_, total, _ = svc.List(context.Background(), Filter{Availability: &m}, 10, 0)
	if total != 1 {
		t.Errorf("maintenance total = %d, want 1", total)
	}

	ward := 1
	items, total, _ = svc.List(context.Background(), Filter{Ward: &ward}, 1, 1)
	if total != 2 || len(items) != 1 || items[0].Number != 2 {
		t.Errorf("paged ward list = %+v (total %d)", items, total)
	}
}

func TestService_SetAvailability(t *testing.T) {
	svc, usage := newTestService()
	r := mustCreate(t, svc, 2, 5, TypeGeneral)
	ctx := context.Background()

	got, err := svc.SetAvailability(ctx, r.ID, "maintenance")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Availability != Maintenance {
		t.Errorf("availability = %s", got.Availability)
	}

	_, err = svc.SetAvailability(ctx, r.ID, Occupied)
	expectKind(t, err, apperr.KindValidation)

	usage.usage[r.ID] = Usage{Referenced: true, Holding: true, By: "an open admission"}
	_, err = svc.SetAvailability(ctx, r.ID, Available)
	if err != nil {
		t.Fatalf("leaving MAINTENANCE is always allowed: %v", err)
	}
	_, err = svc.SetAvailability(ctx, r.ID, Maintenance)
	expectKind(t, err, apperr.KindResourceInUse)

	_, err = svc.SetAvailability(ctx, uuid.New(), Available)
	expectKind(t, err, apperr.KindNotFound)
}

func TestService_SetAvailability_LeavingOccupiedWhileHeld(t *testing.T) {
	svc, usage := newTestService()
	r := mustCreate(t, svc, 2, 5, TypeGeneral)
	ctx := context.Background()

	// Simulate an admission having occupied the bed.
	r.Availability = Occupied
	if err := svc.repo.Update(ctx, r); err != nil {
		t.Fatal(err)
	}
	usage.usage[r.ID] = Usage{Referenced: true, Holding: true, By: "an open admission"}

	_, err := svc.SetAvailability(ctx, r.ID, Available)
	expectKind(t, err, apperr.KindResourceInUse)

	usage.usage[r.ID] = Usage{Referenced: true}
	got, err := svc.SetAvailability(ctx, r.ID, Available)
	if err != nil {
		t.Fatalf("released bed should be freeable: %v", err)
	}
	if got.Availability != Available {
		t.Errorf("availability = %s", got.Availability)
	}
}

func TestService_SetCleaningStatus(t *testing.T) {
	svc, _ := newTestService()
	r := mustCreate(t, svc, 2, 5, TypeGeneral)

	got, err := svc.SetCleaningStatus(context.Background(), r.ID, "under cleaning")
	if err != nil {
		t.Fatal(err)
	}
	if got.CleaningStatus != UnderCleaning {
		t.Errorf("cleaning = %s", got.CleaningStatus)
	}
	_, err = svc.SetCleaningStatus(context.Background(), r.ID, "sparkling")
	expectKind(t, err, apperr.KindValidation)
}

func TestService_Delete(t *testing.T) {
	svc, usage := newTestService()
	r := mustCreate(t, svc, 2, 5, TypeGeneral)
	ctx := context.Background()

	usage.usage[r.ID] = Usage{Referenced: true, By: "admission history"}
	expectKind(t, svc.Delete(ctx, r.ID), apperr.KindResourceInUse)

	delete(usage.usage, r.ID)
	if err := svc.Delete(ctx, r.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := svc.Get(ctx, r.ID)
	expectKind(t, err, apperr.KindNotFound)
	expectKind(t, svc.Delete(ctx, r.ID), apperr.KindNotFound)
}

func TestService_UsageCheckerErrorAborts(t *testing.T) {
	svc, usage := newTestService()
	r := mustCreate(t, svc, 2, 5, TypeGeneral)
	boom := errors.New("store down")
	usage.err = boom

	if err := svc.Delete(context.Background(), r.ID); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if _, err := svc.Get(context.Background(), r.ID); err != nil {
		t.Error("resource should survive a failed delete")
	}
}

func TestRepoMem_RollbackRestoresResource(t *testing.T) {
	repo := NewRepoMem()
	tx := db.NewMemTransactor()
	ctx := context.Background()
	r := &Resource{Ward: 1, Number: 1, Type: TypeGeneral, Availability: Available, CleaningStatus: Cleaned}
	if err := repo.Create(ctx, r); err != nil {
		t.Fatal(err)
	}

	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		r.Availability = Occupied
		if err := repo.Update(ctx, r); err != nil {
			return err
		}
		return errors.New("later step failed")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	got, _ := repo.GetByID(ctx, r.ID)
	if got.Availability != Available {
		t.Errorf("availability after rollback = %s, want AVAILABLE", got.Availability)
	}
}
