package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"snapword/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "captures.sqlite"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreRecordAndRecent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC)

	first := domain.CaptureResult{
		ID:         "a",
		Source:     domain.TriggerSourceVoice,
		Prompt:     "add a hat",
		Status:     domain.CaptureStatusUploaded,
		HTTPStatus: 200,
		ImageURI:   "/frames/a.jpg",
		Cropped:    true,
		StartedAt:  base,
		FinishedAt: base.Add(2 * time.Second),
	}
	second := domain.CaptureResult{
		ID:         "b",
		Source:     domain.TriggerSourceManual,
		Status:     domain.CaptureStatusUploadFailed,
		HTTPStatus: 500,
		Error:      "upload rejected with status 500",
		StartedAt:  base.Add(time.Minute),
		FinishedAt: base.Add(time.Minute + time.Second),
	}
	for _, r := range []domain.CaptureResult{first, second} {
		if err := store.Record(ctx, r); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "b" || recent[1].ID != "a" {
		t.Fatalf("expected newest first, got %+v", recent)
	}
	got := recent[1]
	if got.Prompt != "add a hat" || !got.Cropped || got.HTTPStatus != 200 || got.Source != domain.TriggerSourceVoice {
		t.Fatalf("unexpected round trip: %+v", got)
	}
	if !got.StartedAt.Equal(first.StartedAt) || !got.FinishedAt.Equal(first.FinishedAt) {
		t.Fatalf("unexpected timestamps: %+v", got)
	}
	if recent[0].Error == "" || recent[0].Status != domain.CaptureStatusUploadFailed {
		t.Fatalf("unexpected failed record: %+v", recent[0])
	}

	limited, err := store.Recent(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d %v", len(limited), err)
	}
}

func TestStoreRecordReplacesSameID(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	r := domain.CaptureResult{ID: "x", Source: domain.TriggerSourceManual, Status: domain.CaptureStatusCameraFailed, StartedAt: time.Now()}
	if err := store.Record(ctx, r); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	r.Status = domain.CaptureStatusUploaded
	if err := store.Record(ctx, r); err != nil {
		t.Fatalf("re-record failed: %v", err)
	}

	recent, err := store.Recent(ctx, 0)
	if err != nil || len(recent) != 1 || recent[0].Status != domain.CaptureStatusUploaded {
		t.Fatalf("unexpected records: %+v %v", recent, err)
	}
}

func TestStoreReopenKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "captures.sqlite")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := store.Record(context.Background(), domain.CaptureResult{ID: "keep", Source: domain.TriggerSourceVoice, Status: domain.CaptureStatusUploaded, StartedAt: time.Now()}); err != nil {
		t.Fatalf("record failed: %v", err)
	}
	store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	recent, err := reopened.Recent(context.Background(), 5)
	if err != nil || len(recent) != 1 || recent[0].ID != "keep" {
		t.Fatalf("expected persisted record, got %+v %v", recent, err)
	}
}
