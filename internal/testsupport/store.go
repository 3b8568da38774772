package testsupport

import (
	"context"
	"testing"
	"time"

	"reelcast/internal/config"
	"reelcast/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// MustCreateRecord inserts a record with a default script and fails the test on error.
func MustCreateRecord(t testing.TB, st *store.Store, rec *store.Record) *store.Record {
	t.Helper()

	if rec.Kind == "" {
		rec.Kind = store.KindProperty
	}
	if rec.Script == "" {
		rec.Script = "Three bedrooms, two baths, a wraparound porch."
	}
	created, err := st.Create(context.Background(), rec)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return created
}

// MustGetRecord fetches a record that is expected to exist.
func MustGetRecord(t testing.TB, st *store.Store, ref store.Ref) *store.Record {
	t.Helper()

	rec, err := st.Get(context.Background(), ref)
	if err != nil {
		t.Fatalf("Get %s: %v", ref, err)
	}
	if rec == nil {
		t.Fatalf("record %s not found", ref)
	}
	return rec
}

// FixedClock returns a clock func that always reports at.
func FixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
