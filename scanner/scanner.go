// Package scanner walks photo folders, fingerprints files, maintains the
// catalog and persists a resumable cursor so interrupted scans continue where
// they stopped.
package scanner

import (
	"context"
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"photosorter/config"
	"photosorter/database"
	"photosorter/logging"
	"photosorter/signalhandler"
	"photosorter/types"
)

// Engine runs scan sessions. One scan per root may be active at a time;
// concurrent requests for the same root receive the already-running session.
type Engine struct {
	store  *database.Store
	hasher Hasher
	exif   ExifFunc
	cfg    config.Config

	// OnProgress, when set, is invoked after every committed batch.
	OnProgress func(processed, failed, total int)

	mu     sync.Mutex
	active map[string]string       // root path -> session id
	locks  map[string]*flock.Flock // root path -> held lock file
}

// New builds a scan engine over the given store and collaborators.
func New(store *database.Store, hasher Hasher, exif ExifFunc, cfg config.Config) *Engine {
	return &Engine{
		store:  store,
		hasher: hasher,
		exif:   exif,
		cfg:    cfg,
		active: make(map[string]string),
		locks:  make(map[string]*flock.Flock),
	}
}

// Scan starts or resumes a scan of root. Small folders are scanned before
// returning; folders above the background threshold are scanned in a
// background goroutine and the in-progress session is returned for polling.
// forceRestart cancels a resumable session and starts fresh.
func (e *Engine) Scan(ctx context.Context, root string, recursive, forceRestart bool) (*types.ScanSession, error) {
	absRoot, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return nil, types.WrapError(types.ErrInvalidArgument, err, "root", root)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, types.WrapError(types.ErrInvalidArgument, err, "root not readable", absRoot)
	}
	if !info.IsDir() {
		return nil, types.WrapError(types.ErrInvalidArgument, nil, "root is not a directory", absRoot)
	}

	// A second request for an in-progress root returns the running session.
	e.mu.Lock()
	if sid, ok := e.active[absRoot]; ok {
		e.mu.Unlock()
		return e.store.GetSession(ctx, sid)
	}
	e.mu.Unlock()

	lock := flock.New(e.lockPath(absRoot))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, types.WrapError(types.ErrIOFailure, err, "acquire scan lock")
	}
	if !locked {
		return nil, types.WrapError(types.ErrConflict, nil, "scan already in progress for", absRoot)
	}

	session, paths, err := e.prepareSession(ctx, absRoot, recursive, forceRestart)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	e.mu.Lock()
	e.active[absRoot] = session.ID
	e.locks[absRoot] = lock
	e.mu.Unlock()

	if session.TotalFiles > e.cfg.BackgroundThreshold {
		logging.LogInfo("scanning %d files in background for %s", session.TotalFiles, absRoot)
		go e.run(context.Background(), session, paths)
		return session, nil
	}

	e.run(ctx, session, paths)
	// ctx may be the reason run stopped; the final state is still readable
	// and the session stays resumable.
	return e.store.GetSession(context.Background(), session.ID)
}

// Status returns the current state of a session.
func (e *Engine) Status(ctx context.Context, sessionID string) (*types.ScanSession, error) {
	return e.store.GetSession(ctx, sessionID)
}

// Cancel asks a running session to stop. The in-flight batch completes and
// commits before the engine stops, so no committed progress is lost.
func (e *Engine) Cancel(ctx context.Context, sessionID string) error {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != types.ScanInProgress {
		return types.WrapError(types.ErrInvalidArgument, nil,
			fmt.Sprintf("session %s is %s, not cancellable", sessionID, session.Status))
	}
	return e.store.UpdateSessionStatus(ctx, sessionID, types.ScanCancelled, "cancelled by request")
}

// CancelActive cancels every session this engine is currently running. Used
// on shutdown so the sessions stay resumable.
func (e *Engine) CancelActive(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.active))
	for _, sid := range e.active {
		ids = append(ids, sid)
	}
	e.mu.Unlock()

	for _, sid := range ids {
		if err := e.Cancel(ctx, sid); err != nil {
			logging.LogWarning("cancel session %s: %v", sid, err)
		}
	}
}

// prepareSession discovers the ordered file sequence and either resumes the
// existing in-progress session for root or creates a new one.
func (e *Engine) prepareSession(ctx context.Context, root string, recursive, forceRestart bool) (*types.ScanSession, []string, error) {
	existing, err := e.store.FindResumableSession(ctx, root)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil && forceRestart {
		if err := e.store.UpdateSessionStatus(ctx, existing.ID, types.ScanCancelled, "cancelled to start a fresh scan"); err != nil {
			return nil, nil, err
		}
		existing = nil
	}

	if existing != nil {
		recursive = existing.Recursive
	}

	paths, err := DiscoverFiles(root, recursive)
	if err != nil {
		return nil, nil, types.WrapError(types.ErrInvalidArgument, err, "enumerate", root)
	}

	if existing != nil {
		// The file set may have changed since the interrupted attempt, so
		// the counters are re-derived from the cursor's position in the
		// fresh sequence; the stored counter could otherwise exceed the new
		// total.
		existing.TotalFiles = len(paths)
		existing.ProcessedFiles = resumeIndex(paths, existing.ResumeCursor)
		if existing.FailedFiles > existing.ProcessedFiles {
			existing.FailedFiles = existing.ProcessedFiles
		}
		if err := e.store.CommitScanBatch(ctx, existing, nil); err != nil {
			return nil, nil, err
		}
		logging.DebugLog("resuming session %s at cursor %q (%d/%d processed)",
			existing.ID, existing.ResumeCursor, existing.ProcessedFiles, existing.TotalFiles)
		return existing, paths, nil
	}

	session := &types.ScanSession{
		ID:         uuid.NewString(),
		Root:       root,
		Recursive:  recursive,
		Status:     types.ScanInProgress,
		TotalFiles: len(paths),
		StartedAt:  time.Now(),
	}
	if err := e.store.CreateSession(ctx, session); err != nil {
		return nil, nil, err
	}
	return session, paths, nil
}

// run processes the remaining sequence in batches. Each batch commits
// atomically; between batches the engine honors context cancellation and a
// cancelled session status.
func (e *Engine) run(ctx context.Context, session *types.ScanSession, paths []string) {
	defer e.release(session.Root)

	// Skip everything the previous attempt durably committed.
	start := resumeIndex(paths, session.ResumeCursor)

	for start < len(paths) {
		if ctx.Err() != nil {
			logging.LogInfo("scan %s interrupted, session stays resumable", session.ID)
			return
		}
		if cancelled, err := e.sessionCancelled(ctx, session.ID); err != nil || cancelled {
			if err != nil {
				logging.LogError("check session %s: %v", session.ID, err)
			}
			return
		}

		end := start + e.cfg.BatchSize
		if end > len(paths) {
			end = len(paths)
		}
		batch := paths[start:end]

		records, failed := e.processBatch(batch)
		session.ProcessedFiles += len(batch)
		session.FailedFiles += failed
		session.ResumeCursor = batch[len(batch)-1]

		if err := e.store.CommitScanBatch(ctx, session, records); err != nil {
			logging.LogError("commit batch for session %s: %v", session.ID, err)
			_ = e.store.UpdateSessionStatus(ctx, session.ID, types.ScanFailed, err.Error())
			return
		}
		if e.OnProgress != nil {
			e.OnProgress(session.ProcessedFiles, session.FailedFiles, session.TotalFiles)
		}

		start = end
	}

	if err := e.store.UpdateSessionStatus(ctx, session.ID, types.ScanCompleted, ""); err != nil {
		logging.LogError("complete session %s: %v", session.ID, err)
	}
}

// processBatch fingerprints and hashes one batch. Hash computation runs in a
// bounded worker pool; results are collected before the caller commits the
// whole batch, so commit atomicity and cursor ordering are unaffected.
func (e *Engine) processBatch(batch []string) ([]*types.FileRecord, int) {
	workers := e.cfg.HashWorkers
	if workers <= 0 {
		workers = signalhandler.GetOptimalProcs()
	}

	results := make([]fileResult, len(batch))
	semaphore := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, path := range batch {
		wg.Add(1)
		semaphore <- struct{}{}
		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-semaphore }()
			results[i] = e.processFile(path)
		}(i, path)
	}
	wg.Wait()

	var records []*types.FileRecord
	failed := 0
	for _, res := range results {
		if res.failed {
			failed++
			logging.LogFileProcessed(res.path, false, res.err.Error())
			continue
		}
		if res.record != nil {
			records = append(records, res.record)
			logging.LogFileProcessed(res.path, true, "")
		}
	}
	return records, failed
}

// processFile stats and fingerprints a single file, recomputing perceptual
// hashes only when the fingerprint changed since the last scan. Per-file
// errors are recorded, never raised.
func (e *Engine) processFile(path string) fileResult {
	info, err := os.Stat(path)
	if err != nil {
		return fileResult{path: path, failed: true, err: fmt.Errorf("cannot stat file %s: %v", path, err)}
	}

	fingerprint, err := Fingerprint(path, info)
	if err != nil {
		return fileResult{path: path, failed: true, err: err}
	}

	existing, err := e.store.GetFileByPath(context.Background(), path)
	if err == nil && existing.Fingerprint == fingerprint && !existing.IsDeleted {
		// Unchanged since last scan: skip hash recomputation entirely.
		return fileResult{path: path}
	}

	hashes, err := e.hasher.HashFile(path)
	if err != nil {
		return fileResult{path: path, failed: true, err: fmt.Errorf("cannot hash %s: %v", path, err)}
	}

	record := &types.FileRecord{
		Path:        path,
		Filename:    filepath.Base(path),
		FolderPath:  filepath.Dir(path),
		Size:        info.Size(),
		ModifiedAt:  info.ModTime(),
		Fingerprint: fingerprint,
		Hashes:      hashes,
		ScannedAt:   time.Now(),
	}
	if e.exif != nil {
		if ts, ok := e.exif(path); ok {
			record.CaptureTime = &ts
		}
	}
	return fileResult{path: path, record: record}
}

// resumeIndex returns the position of the first path strictly after cursor in
// the sorted sequence, which is both where a resumed scan continues and how
// many paths the previous attempt committed.
func resumeIndex(paths []string, cursor string) int {
	if cursor == "" {
		return 0
	}
	i := 0
	for i < len(paths) && paths[i] <= cursor {
		i++
	}
	return i
}

func (e *Engine) sessionCancelled(ctx context.Context, sessionID string) (bool, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return session.Status == types.ScanCancelled, nil
}

func (e *Engine) release(root string) {
	e.mu.Lock()
	lock := e.locks[root]
	delete(e.locks, root)
	delete(e.active, root)
	e.mu.Unlock()

	if lock != nil {
		if err := lock.Unlock(); err != nil {
			logging.LogWarning("release scan lock for %s: %v", root, err)
		}
	}
}

// lockPath keys the cross-process lock file on the root path, stored beside
// the database so scan locks survive in one predictable place.
func (e *Engine) lockPath(root string) string {
	digest := md5.Sum([]byte(root))
	return fmt.Sprintf("%s.scan-%x.lock", e.cfg.DatabasePath, digest[:6])
}
