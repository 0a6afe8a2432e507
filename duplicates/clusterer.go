// Package duplicates groups perceptually similar catalog files and applies
// review decisions to the groups.
package duplicates

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"photosorter/config"
	"photosorter/database"
	"photosorter/fileops"
	"photosorter/imageprocessor"
	"photosorter/logging"
	"photosorter/types"
)

// Threshold bounds accepted by Cluster.
const (
	MinThreshold = 1
	MaxThreshold = 30
)

// groupNamespace makes group ids deterministic: the same member set always
// produces the same id, so repeated clustering of identical input is
// reproducible.
var groupNamespace = uuid.MustParse("9f2c1af0-6d21-4a52-9f6e-b1d9f6f3c7aa")

// Clusterer builds duplicate groups from the catalog.
type Clusterer struct {
	store *database.Store
	fops  fileops.FileOps
	cfg   config.Config
}

// New builds a clusterer over the given store and file operations.
func New(store *database.Store, fops fileops.FileOps, cfg config.Config) *Clusterer {
	return &Clusterer{store: store, fops: fops, cfg: cfg}
}

// Cluster groups active files whose weighted hash distance is within
// threshold. With rescan=false, a prior run at the same threshold is returned
// from the store as long as no file changed since — otherwise a fresh pass
// runs and replaces the pending groups.
func (c *Clusterer) Cluster(ctx context.Context, threshold int, rescan bool) ([]*types.DuplicateGroup, error) {
	if threshold < MinThreshold || threshold > MaxThreshold {
		return nil, types.WrapError(types.ErrInvalidArgument, nil,
			fmt.Sprintf("threshold %d out of range [%d,%d]", threshold, MinThreshold, MaxThreshold))
	}

	if !rescan {
		valid, err := c.store.ClusterCacheValid(ctx, threshold)
		if err != nil {
			return nil, err
		}
		if valid {
			// The cached result is the pending set the last run persisted;
			// reviewed groups are audit history, not current findings.
			logging.DebugLog("returning cached duplicate groups for threshold %d", threshold)
			return c.store.ListGroups(ctx, types.GroupPending)
		}
	}

	files, err := c.store.ListActiveFiles(ctx, database.ListFilter{WithHashes: true})
	if err != nil {
		return nil, err
	}

	groups, err := c.cluster(files, threshold)
	if err != nil {
		return nil, err
	}

	if err := c.store.ReplaceGroups(ctx, threshold, groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// ListGroups returns stored groups filtered by status ("" for all).
func (c *Clusterer) ListGroups(ctx context.Context, status types.GroupStatus) ([]*types.DuplicateGroup, error) {
	return c.store.ListGroups(ctx, status)
}

// cluster is the pure grouping pass over a file snapshot.
//
// Naive all-pairs comparison is quadratic on 30k+ files, so candidates are
// bucketed by the top bits of their pHash first. Completeness: a pair at
// weighted distance <= t has pHash distance <= 2t (pHash carries half the
// weight), and the prefix of the XOR can never contain more set bits than the
// whole word, so only buckets whose keys differ by at most min(2t, width)
// bits need pairwise comparison.
func (c *Clusterer) cluster(files []*types.FileRecord, threshold int) ([]*types.DuplicateGroup, error) {
	width := c.cfg.BucketPrefixBits
	if width < 1 || width > imageprocessor.HashBits {
		width = 16
	}

	buckets := make(map[uint64][]int)
	for i, file := range files {
		key, err := imageprocessor.PrefixKey(file.Hashes.PHash, width)
		if err != nil {
			logging.LogWarning("skipping file %d with bad hash: %v", file.ID, err)
			continue
		}
		buckets[key] = append(buckets[key], i)
	}

	keys := make([]uint64, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	radius := imageprocessor.MaxPHashDistance(threshold)
	if radius > width {
		radius = width
	}

	dsu := newUnionFind(len(files))
	for i, k1 := range keys {
		for j := i; j < len(keys); j++ {
			if imageprocessor.PrefixDistance(k1, keys[j]) > radius {
				continue
			}
			if err := c.compareBuckets(files, buckets[k1], buckets[keys[j]], i == j, threshold, dsu); err != nil {
				return nil, err
			}
		}
	}

	return c.buildGroups(files, threshold, dsu)
}

func (c *Clusterer) compareBuckets(files []*types.FileRecord, left, right []int, same bool, threshold int, dsu *unionFind) error {
	for li, a := range left {
		start := 0
		if same {
			start = li + 1
		}
		for _, b := range right[start:] {
			num, den, err := imageprocessor.CombinedDistance(files[a].Hashes, files[b].Hashes)
			if err != nil {
				return fmt.Errorf("compare %s and %s: %w", files[a].Path, files[b].Path, err)
			}
			if num <= threshold*den {
				dsu.union(a, b)
			}
		}
	}
	return nil
}

// buildGroups turns connected components into DuplicateGroups, discarding
// singletons. Member order is capture timestamp descending, ties by ascending
// id; groups are ordered by their smallest member id.
func (c *Clusterer) buildGroups(files []*types.FileRecord, threshold int, dsu *unionFind) ([]*types.DuplicateGroup, error) {
	components := make(map[int][]int)
	for i := range files {
		root := dsu.find(i)
		components[root] = append(components[root], i)
	}

	var groups []*types.DuplicateGroup
	for _, indices := range components {
		if len(indices) < 2 {
			continue
		}

		members := make([]*types.FileRecord, len(indices))
		for i, idx := range indices {
			members[i] = files[idx]
		}
		sort.Slice(members, func(i, j int) bool {
			ti, tj := captureOrZero(members[i]), captureOrZero(members[j])
			if !ti.Equal(tj) {
				return ti.After(tj)
			}
			return members[i].ID < members[j].ID
		})

		score, err := similarityScore(members)
		if err != nil {
			return nil, err
		}

		memberIDs := make([]int64, len(members))
		idParts := make([]string, len(members))
		for i, m := range members {
			memberIDs[i] = m.ID
			idParts[i] = fmt.Sprintf("%d", m.ID)
		}

		groups = append(groups, &types.DuplicateGroup{
			ID:              uuid.NewSHA1(groupNamespace, []byte(strings.Join(idParts, ","))).String(),
			Threshold:       threshold,
			MemberIDs:       memberIDs,
			SimilarityScore: score,
			Status:          types.GroupPending,
			Action:          types.ActionNone,
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		return minID(groups[i].MemberIDs) < minID(groups[j].MemberIDs)
	})
	return groups, nil
}

// similarityScore is 100 minus the average pairwise normalized distance,
// expressed as a percentage of the hash size.
func similarityScore(members []*types.FileRecord) (float64, error) {
	var total float64
	comparisons := 0
	for i := range members {
		for j := i + 1; j < len(members); j++ {
			num, den, err := imageprocessor.CombinedDistance(members[i].Hashes, members[j].Hashes)
			if err != nil {
				return 0, err
			}
			total += imageprocessor.NormalizedDistance(num, den)
			comparisons++
		}
	}
	if comparisons == 0 {
		return 0, nil
	}
	avg := total / float64(comparisons)
	score := 100 - avg/float64(imageprocessor.HashBits)*100
	if score < 0 {
		score = 0
	}
	return score, nil
}

func captureOrZero(rec *types.FileRecord) time.Time {
	if rec.CaptureTime != nil {
		return *rec.CaptureTime
	}
	return time.Time{}
}

func minID(ids []int64) int64 {
	min := ids[0]
	for _, id := range ids[1:] {
		if id < min {
			min = id
		}
	}
	return min
}
