package duplicates

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"photosorter/config"
	"photosorter/database"
	"photosorter/types"
)

// fakeFileOps records calls instead of touching the filesystem.
type fakeFileOps struct {
	moved   [][2]string
	trashed []string
	refs    [][2]string
	failOn  string
}

func (f *fakeFileOps) Move(src, dst string) error {
	if src == f.failOn {
		return types.WrapError(types.ErrIOFailure, nil, "injected failure", src)
	}
	f.moved = append(f.moved, [2]string{src, dst})
	return nil
}

func (f *fakeFileOps) CreateReference(target, linkPath string) (string, error) {
	if target == f.failOn {
		return "", types.WrapError(types.ErrIOFailure, nil, "injected failure", target)
	}
	f.refs = append(f.refs, [2]string{target, linkPath})
	return linkPath, nil
}

func (f *fakeFileOps) MoveToTrash(path string) (string, error) {
	if path == f.failOn {
		return "", types.WrapError(types.ErrIOFailure, nil, "injected failure", path)
	}
	trashPath := filepath.Join(filepath.Dir(path), ".trash", filepath.Base(path))
	f.trashed = append(f.trashed, path)
	return trashPath, nil
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

// seedGroup inserts n catalog records and one pending group over them,
// returning the group id and member ids.
func seedGroup(t *testing.T, store *database.Store, n int) (string, []int64) {
	t.Helper()
	ctx := context.Background()

	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		rec := &types.FileRecord{
			Path:        fmt.Sprintf("/photos/dup_%d.jpg", i),
			Filename:    fmt.Sprintf("dup_%d.jpg", i),
			FolderPath:  "/photos",
			Size:        1024,
			Fingerprint: fmt.Sprintf("fp-%d", i),
			Hashes:      types.HashSet{PHash: "abcd", DHash: "abcd", AHash: "abcd"},
		}
		if err := store.UpsertFile(ctx, nil, rec); err != nil {
			t.Fatalf("seed file %d: %v", i, err)
		}
		ids[i] = rec.ID
	}

	group := &types.DuplicateGroup{
		ID:              "test-group",
		Threshold:       10,
		MemberIDs:       ids,
		SimilarityScore: 100,
		Status:          types.GroupPending,
		Action:          types.ActionNone,
	}
	if err := store.ReplaceGroups(ctx, 10, []*types.DuplicateGroup{group}); err != nil {
		t.Fatalf("seed group: %v", err)
	}
	return group.ID, ids
}

func TestApplyActionUnknownGroup(t *testing.T) {
	store := openTestStore(t)
	c := New(store, &fakeFileOps{}, config.Default())

	_, err := c.ApplyAction(context.Background(), "no-such-group", types.ActionKeep, nil, 0)
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestApplyActionNonMemberFile(t *testing.T) {
	store := openTestStore(t)
	groupID, _ := seedGroup(t, store, 2)
	c := New(store, &fakeFileOps{}, config.Default())

	_, err := c.ApplyAction(context.Background(), groupID, types.ActionKeep, []int64{9999}, 0)
	if !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("got %v, want ErrInvalidArgument", err)
	}
}

func TestApplyActionKeep(t *testing.T) {
	store := openTestStore(t)
	groupID, ids := seedGroup(t, store, 3)
	fops := &fakeFileOps{}
	c := New(store, fops, config.Default())
	ctx := context.Background()

	result, err := c.ApplyAction(ctx, groupID, types.ActionKeep, ids, 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.Affected != 3 {
		t.Errorf("affected = %d, want 3", result.Affected)
	}
	if len(fops.trashed) != 0 || len(fops.refs) != 0 {
		t.Error("keep must not touch files")
	}

	group, err := store.GetGroup(ctx, groupID)
	if err != nil {
		t.Fatal(err)
	}
	if group.Status != types.GroupReviewed || group.Action != types.ActionKeep {
		t.Errorf("group state = %s/%s, want reviewed/keep", group.Status, group.Action)
	}
}

func TestApplyActionDelete(t *testing.T) {
	store := openTestStore(t)
	groupID, ids := seedGroup(t, store, 3)
	fops := &fakeFileOps{}
	c := New(store, fops, config.Default())
	ctx := context.Background()

	keep := ids[0]
	result, err := c.ApplyAction(ctx, groupID, types.ActionDelete, ids, keep)
	if err != nil {
		t.Fatal(err)
	}
	if result.Affected != 2 {
		t.Errorf("affected = %d, want 2", result.Affected)
	}
	if len(fops.trashed) != 2 {
		t.Errorf("trashed %d files, want 2", len(fops.trashed))
	}

	// The kept file must not be touched.
	kept, err := store.GetFileByID(ctx, keep)
	if err != nil {
		t.Fatal(err)
	}
	if kept.IsDeleted {
		t.Error("kept file was soft-deleted")
	}
	for _, id := range ids[1:] {
		rec, err := store.GetFileByID(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if !rec.IsDeleted {
			t.Errorf("file %d not soft-deleted", id)
		}
	}
}

func TestApplyActionDeleteRequiresKeepFile(t *testing.T) {
	store := openTestStore(t)
	groupID, ids := seedGroup(t, store, 2)
	c := New(store, &fakeFileOps{}, config.Default())
	ctx := context.Background()

	if _, err := c.ApplyAction(ctx, groupID, types.ActionDelete, ids, 0); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("missing keep id: got %v, want ErrInvalidArgument", err)
	}
	if _, err := c.ApplyAction(ctx, groupID, types.ActionDelete, ids, 9999); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("non-member keep id: got %v, want ErrInvalidArgument", err)
	}
}

func TestApplyActionDeleteContinuesPastFailures(t *testing.T) {
	store := openTestStore(t)
	groupID, ids := seedGroup(t, store, 3)
	fops := &fakeFileOps{failOn: "/photos/dup_1.jpg"}
	c := New(store, fops, config.Default())

	result, err := c.ApplyAction(context.Background(), groupID, types.ActionDelete, ids, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if result.Affected != 1 {
		t.Errorf("affected = %d, want 1", result.Affected)
	}
	if len(result.Errors) != 1 {
		t.Errorf("errors = %v, want one entry", result.Errors)
	}
}

func TestApplyActionFavorite(t *testing.T) {
	store := openTestStore(t)
	groupID, ids := seedGroup(t, store, 2)
	fops := &fakeFileOps{}
	c := New(store, fops, config.Default())
	ctx := context.Background()

	result, err := c.ApplyAction(ctx, groupID, types.ActionFavorite, ids[:1], 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.Affected != 1 {
		t.Errorf("affected = %d, want 1", result.Affected)
	}
	if len(fops.refs) != 1 {
		t.Fatalf("refs = %v, want one reference", fops.refs)
	}
	// Reference lands in the favorites directory beside the parent folder.
	wantLink := filepath.Join("/", "favorites", "dup_0.jpg")
	if fops.refs[0][1] != wantLink {
		t.Errorf("reference path = %s, want %s", fops.refs[0][1], wantLink)
	}

	rec, err := store.GetFileByID(ctx, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if !rec.IsFavorite {
		t.Error("file not flagged favorite")
	}
}

func TestApplyActionDecideLater(t *testing.T) {
	store := openTestStore(t)
	groupID, ids := seedGroup(t, store, 2)
	fops := &fakeFileOps{}
	c := New(store, fops, config.Default())
	ctx := context.Background()

	if _, err := c.ApplyAction(ctx, groupID, types.ActionDecideLater, ids, 0); err != nil {
		t.Fatal(err)
	}
	if len(fops.trashed) != 0 || len(fops.refs) != 0 {
		t.Error("decide_later must not touch files")
	}

	group, err := store.GetGroup(ctx, groupID)
	if err != nil {
		t.Fatal(err)
	}
	if group.Status != types.GroupPending {
		t.Errorf("group status = %s, want pending", group.Status)
	}
}

// The cached path must return exactly what a fresh pass at the same
// threshold would: reviewed groups from earlier runs stay out of the result.
func TestClusterCachedMatchesFreshRun(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	seed := func(path, hash string) int64 {
		rec := &types.FileRecord{
			Path:        path,
			Filename:    filepath.Base(path),
			FolderPath:  filepath.Dir(path),
			Size:        1024,
			Fingerprint: "fp-" + filepath.Base(path),
			Hashes:      types.HashSet{PHash: hash, DHash: hash, AHash: hash},
		}
		if err := store.UpsertFile(ctx, nil, rec); err != nil {
			t.Fatal(err)
		}
		return rec.ID
	}
	nearA := seed("/photos/near_a.jpg", "0")
	nearB := seed("/photos/near_b.jpg", "1")
	farA := seed("/photos/far_a.jpg", "ffffffffffffffff")
	farB := seed("/photos/far_b.jpg", "0f0f0f0f0f0f0f0f")

	// A reviewed group left over from an earlier run at another threshold.
	old := &types.DuplicateGroup{
		ID: "old-run", Threshold: 5, MemberIDs: []int64{farA, farB},
		SimilarityScore: 80, Status: types.GroupPending, Action: types.ActionNone,
	}
	if err := store.ReplaceGroups(ctx, 5, []*types.DuplicateGroup{old}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateGroupReview(ctx, "old-run", types.GroupReviewed, types.ActionKeep); err != nil {
		t.Fatal(err)
	}

	c := New(store, &fakeFileOps{}, config.Default())
	fresh, err := c.Cluster(ctx, 10, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 1 || !fresh[0].Contains(nearA) || !fresh[0].Contains(nearB) {
		t.Fatalf("fresh pass = %+v, want one group of the near pair", fresh)
	}

	cached, err := c.Cluster(ctx, 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(cached) != 1 {
		t.Fatalf("cached pass returned %d groups, want 1", len(cached))
	}
	if cached[0].ID != fresh[0].ID || cached[0].Status != types.GroupPending {
		t.Errorf("cached group = %s/%s, want %s/pending", cached[0].ID, cached[0].Status, fresh[0].ID)
	}
}

func TestClusterRejectsThresholdOutOfRange(t *testing.T) {
	c := New(nil, nil, config.Default())
	for _, threshold := range []int{0, -1, 31} {
		if _, err := c.Cluster(context.Background(), threshold, false); !errors.Is(err, types.ErrInvalidArgument) {
			t.Errorf("threshold %d: got %v, want ErrInvalidArgument", threshold, err)
		}
	}
}
