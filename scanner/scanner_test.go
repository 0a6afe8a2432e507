package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"photosorter/config"
	"photosorter/database"
	"photosorter/types"
)

// countingHasher returns a fixed hash set and counts how many times hashes
// were actually computed. Paths containing "bad" fail.
type countingHasher struct {
	calls int64
}

func (h *countingHasher) HashFile(path string) (types.HashSet, error) {
	atomic.AddInt64(&h.calls, 1)
	if strings.Contains(filepath.Base(path), "bad") {
		return types.HashSet{}, fmt.Errorf("cannot decode %s", path)
	}
	return types.HashSet{PHash: "a1b2", DHash: "c3d4", AHash: "e5f6"}, nil
}

func (h *countingHasher) count() int64 {
	return atomic.LoadInt64(&h.calls)
}

// gatedHasher blocks every HashFile call until released, to hold a scan open.
type gatedHasher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedHasher() *gatedHasher {
	return &gatedHasher{started: make(chan struct{}), release: make(chan struct{})}
}

func (h *gatedHasher) HashFile(path string) (types.HashSet, error) {
	h.once.Do(func() { close(h.started) })
	<-h.release
	return types.HashSet{PHash: "a1b2", DHash: "c3d4", AHash: "e5f6"}, nil
}

func fixedExif(path string) (time.Time, bool) {
	return time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), true
}

func testConfig(t *testing.T, store *database.Store) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DatabasePath = store.Path()
	cfg.BatchSize = 2
	cfg.HashWorkers = 1
	return cfg
}

func openTestStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// writeImages creates n fake jpg files named img_00.jpg .. and returns root.
func writeImages(t *testing.T, n int) string {
	t.Helper()
	root := t.TempDir()
	for i := 0; i < n; i++ {
		path := filepath.Join(root, fmt.Sprintf("img_%02d.jpg", i))
		if err := os.WriteFile(path, []byte(fmt.Sprintf("image payload %d", i)), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestScanCatalogsAllFiles(t *testing.T) {
	store := openTestStore(t)
	hasher := &countingHasher{}
	engine := New(store, hasher, fixedExif, testConfig(t, store))
	root := writeImages(t, 5)
	ctx := context.Background()

	session, err := engine.Scan(ctx, root, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if session.Status != types.ScanCompleted {
		t.Fatalf("status = %s, want completed", session.Status)
	}
	if session.ProcessedFiles != 5 || session.TotalFiles != 5 || session.FailedFiles != 0 {
		t.Errorf("counters = %d/%d (%d failed), want 5/5 (0 failed)",
			session.ProcessedFiles, session.TotalFiles, session.FailedFiles)
	}
	if hasher.count() != 5 {
		t.Errorf("hash computations = %d, want 5", hasher.count())
	}

	files, err := store.ListActiveFiles(ctx, database.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 5 {
		t.Fatalf("cataloged %d files, want 5", len(files))
	}
	for _, f := range files {
		if f.Hashes.Empty() {
			t.Errorf("file %s has no hashes", f.Path)
		}
		if f.CaptureTime == nil {
			t.Errorf("file %s has no capture time", f.Path)
		}
	}
}

func TestScanRejectsBadRoot(t *testing.T) {
	store := openTestStore(t)
	engine := New(store, &countingHasher{}, nil, testConfig(t, store))
	ctx := context.Background()

	if _, err := engine.Scan(ctx, filepath.Join(t.TempDir(), "missing"), false, false); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("missing root: got %v, want ErrInvalidArgument", err)
	}

	file := filepath.Join(t.TempDir(), "plain.jpg")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Scan(ctx, file, false, false); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("file root: got %v, want ErrInvalidArgument", err)
	}
}

func TestScanSkipsUnchangedFiles(t *testing.T) {
	store := openTestStore(t)
	hasher := &countingHasher{}
	cfg := testConfig(t, store)
	root := writeImages(t, 4)
	ctx := context.Background()

	if _, err := New(store, hasher, fixedExif, cfg).Scan(ctx, root, false, false); err != nil {
		t.Fatal(err)
	}
	if hasher.count() != 4 {
		t.Fatalf("first scan computed %d hashes, want 4", hasher.count())
	}

	// Unchanged files must not trigger any hash recomputation.
	session, err := New(store, hasher, fixedExif, cfg).Scan(ctx, root, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if session.Status != types.ScanCompleted || session.ProcessedFiles != 4 {
		t.Errorf("second scan: %s %d/%d", session.Status, session.ProcessedFiles, session.TotalFiles)
	}
	if hasher.count() != 4 {
		t.Errorf("second scan recomputed hashes: %d calls, want 4", hasher.count())
	}

	// A changed file is re-hashed, the rest stay skipped.
	changed := filepath.Join(root, "img_02.jpg")
	if err := os.WriteFile(changed, []byte("different payload entirely"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(store, hasher, fixedExif, cfg).Scan(ctx, root, false, false); err != nil {
		t.Fatal(err)
	}
	if hasher.count() != 5 {
		t.Errorf("third scan computed %d total hashes, want 5", hasher.count())
	}
}

func TestScanResumesFromCursor(t *testing.T) {
	store := openTestStore(t)
	hasher := &countingHasher{}
	cfg := testConfig(t, store) // batch size 2
	root := writeImages(t, 5)

	// Interrupt after the first committed batch, as a crash or shutdown would.
	ctx, cancel := context.WithCancel(context.Background())
	engine := New(store, hasher, fixedExif, cfg)
	engine.OnProgress = func(processed, failed, total int) { cancel() }

	session, err := engine.Scan(ctx, root, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if session.Status != types.ScanInProgress {
		t.Fatalf("interrupted session status = %s, want in_progress", session.Status)
	}
	if session.ProcessedFiles != 2 {
		t.Fatalf("committed %d files before interrupt, want 2", session.ProcessedFiles)
	}
	wantCursor := filepath.Join(root, "img_01.jpg")
	if session.ResumeCursor != wantCursor {
		t.Fatalf("cursor = %q, want %q", session.ResumeCursor, wantCursor)
	}

	// A fresh engine resumes the same session past the cursor.
	resumed, err := New(store, hasher, fixedExif, cfg).Scan(context.Background(), root, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.ID != session.ID {
		t.Errorf("resume created session %s, want %s", resumed.ID, session.ID)
	}
	if resumed.Status != types.ScanCompleted || resumed.ProcessedFiles != 5 {
		t.Errorf("resumed session: %s %d/5", resumed.Status, resumed.ProcessedFiles)
	}
	// Every file was hashed exactly once across both runs.
	if hasher.count() != 5 {
		t.Errorf("hash computations across interrupt+resume = %d, want 5", hasher.count())
	}
}

// A resumed scan re-derives its counters from the fresh file sequence: when
// files disappeared between attempts, processed must never exceed total.
func TestScanResumeAfterFileSetChanges(t *testing.T) {
	store := openTestStore(t)
	hasher := &countingHasher{}
	cfg := testConfig(t, store) // batch size 2
	root := writeImages(t, 5)

	ctx, cancel := context.WithCancel(context.Background())
	engine := New(store, hasher, fixedExif, cfg)
	engine.OnProgress = func(processed, failed, total int) { cancel() }
	interrupted, err := engine.Scan(ctx, root, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if interrupted.ProcessedFiles != 2 {
		t.Fatalf("committed %d files before interrupt, want 2", interrupted.ProcessedFiles)
	}

	// The originals vanish and one new file appears past the cursor.
	for i := 0; i < 5; i++ {
		if err := os.Remove(filepath.Join(root, fmt.Sprintf("img_%02d.jpg", i))); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "zz_new.jpg"), []byte("new payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	resumed, err := New(store, hasher, fixedExif, cfg).Scan(context.Background(), root, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.ID != interrupted.ID {
		t.Errorf("resume created session %s, want %s", resumed.ID, interrupted.ID)
	}
	if resumed.Status != types.ScanCompleted {
		t.Errorf("status = %s, want completed", resumed.Status)
	}
	if resumed.ProcessedFiles > resumed.TotalFiles {
		t.Errorf("processed %d exceeds total %d", resumed.ProcessedFiles, resumed.TotalFiles)
	}
	if resumed.TotalFiles != 1 || resumed.ProcessedFiles != 1 {
		t.Errorf("counters = %d/%d, want 1/1", resumed.ProcessedFiles, resumed.TotalFiles)
	}
	if got := resumed.ProgressPercent(); got != 100 {
		t.Errorf("progress = %v%%, want 100", got)
	}
}

func TestScanForceRestart(t *testing.T) {
	store := openTestStore(t)
	hasher := &countingHasher{}
	cfg := testConfig(t, store)
	root := writeImages(t, 5)

	ctx, cancel := context.WithCancel(context.Background())
	engine := New(store, hasher, fixedExif, cfg)
	engine.OnProgress = func(processed, failed, total int) { cancel() }
	interrupted, err := engine.Scan(ctx, root, false, false)
	if err != nil {
		t.Fatal(err)
	}

	fresh, err := New(store, hasher, fixedExif, cfg).Scan(context.Background(), root, false, true)
	if err != nil {
		t.Fatal(err)
	}
	if fresh.ID == interrupted.ID {
		t.Error("force restart reused the old session")
	}
	if fresh.Status != types.ScanCompleted || fresh.ProcessedFiles != 5 {
		t.Errorf("fresh session: %s %d/5", fresh.Status, fresh.ProcessedFiles)
	}

	old, err := store.GetSession(context.Background(), interrupted.ID)
	if err != nil {
		t.Fatal(err)
	}
	if old.Status != types.ScanCancelled {
		t.Errorf("old session status = %s, want cancelled", old.Status)
	}
}

func TestScanRecordsFailures(t *testing.T) {
	store := openTestStore(t)
	root := writeImages(t, 3)
	bad := filepath.Join(root, "img_99_bad.jpg")
	if err := os.WriteFile(bad, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	engine := New(store, &countingHasher{}, fixedExif, testConfig(t, store))
	ctx := context.Background()

	session, err := engine.Scan(ctx, root, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if session.Status != types.ScanCompleted {
		t.Fatalf("status = %s, want completed despite per-file failure", session.Status)
	}
	if session.ProcessedFiles != 4 || session.FailedFiles != 1 {
		t.Errorf("counters = %d processed / %d failed, want 4/1", session.ProcessedFiles, session.FailedFiles)
	}
	if _, err := store.GetFileByPath(ctx, bad); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("failed file was cataloged: %v", err)
	}
}

func TestScanConflictOnSameRoot(t *testing.T) {
	store := openTestStore(t)
	root := writeImages(t, 3)
	cfg := testConfig(t, store)

	hasher := newGatedHasher()
	first := New(store, hasher, nil, cfg)

	done := make(chan error, 1)
	go func() {
		_, err := first.Scan(context.Background(), root, false, false)
		done <- err
	}()
	<-hasher.started

	// A second process-level scanner hits the lock and reports a conflict.
	second := New(store, &countingHasher{}, nil, cfg)
	if _, err := second.Scan(context.Background(), root, false, false); !errors.Is(err, types.ErrConflict) {
		t.Errorf("got %v, want ErrConflict", err)
	}

	// The same engine returns the running session instead.
	session, err := first.Scan(context.Background(), root, false, false)
	if err != nil {
		t.Fatalf("same-engine rescan: %v", err)
	}
	if session.Status != types.ScanInProgress {
		t.Errorf("running session status = %s, want in_progress", session.Status)
	}

	close(hasher.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestCancelStopsBetweenBatches(t *testing.T) {
	store := openTestStore(t)
	hasher := &countingHasher{}
	cfg := testConfig(t, store) // batch size 2
	root := writeImages(t, 6)

	engine := New(store, hasher, fixedExif, cfg)
	var once sync.Once
	engine.OnProgress = func(processed, failed, total int) {
		once.Do(func() {
			sess, err := store.FindResumableSession(context.Background(), root)
			if err != nil || sess == nil {
				t.Errorf("find running session: %v", err)
				return
			}
			if err := engine.Cancel(context.Background(), sess.ID); err != nil {
				t.Errorf("cancel: %v", err)
			}
		})
	}

	session, err := engine.Scan(context.Background(), root, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if session.Status != types.ScanCancelled {
		t.Fatalf("status = %s, want cancelled", session.Status)
	}
	// The in-flight batch committed; nothing past it ran.
	if session.ProcessedFiles != 2 {
		t.Errorf("processed = %d, want 2", session.ProcessedFiles)
	}
	if hasher.count() != 2 {
		t.Errorf("hash computations = %d, want 2", hasher.count())
	}
}

func TestCancelRejectsFinishedSession(t *testing.T) {
	store := openTestStore(t)
	engine := New(store, &countingHasher{}, nil, testConfig(t, store))
	root := writeImages(t, 1)
	ctx := context.Background()

	session, err := engine.Scan(ctx, root, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.Cancel(ctx, session.ID); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("cancel completed session: got %v, want ErrInvalidArgument", err)
	}
	if err := engine.Cancel(ctx, "no-such-session"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("cancel unknown session: got %v, want ErrNotFound", err)
	}
}
