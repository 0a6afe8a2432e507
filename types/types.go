package types

import (
	"fmt"
	"time"
)

// FileRecord holds the catalog entry for a scanned media file.
type FileRecord struct {
	ID          int64      `json:"id"`
	Path        string     `json:"path"`
	Filename    string     `json:"filename"`
	FolderPath  string     `json:"folder_path"`
	Size        int64      `json:"size"`
	ModifiedAt  time.Time  `json:"modified_at"`
	Fingerprint string     `json:"fingerprint"`
	Hashes      HashSet    `json:"hashes"`
	CaptureTime *time.Time `json:"capture_time"`
	IsFavorite  bool       `json:"is_favorite"`
	IsOrganized bool       `json:"is_organized"`
	IsDeleted   bool       `json:"is_deleted"`
	GroupID     string     `json:"group_id"`
	ScannedAt   time.Time  `json:"scanned_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// HashSet bundles the perceptual hashes computed per image, each a
// 64-bit hash encoded as a 16-character hex string.
type HashSet struct {
	PHash string `json:"phash"`
	DHash string `json:"dhash"`
	AHash string `json:"ahash"`
}

// Empty reports whether no hash was computed for the file.
func (h HashSet) Empty() bool {
	return h.PHash == "" && h.DHash == "" && h.AHash == ""
}

// ScanStatus is the lifecycle state of a scan session.
type ScanStatus string

const (
	ScanPending    ScanStatus = "pending"
	ScanInProgress ScanStatus = "in_progress"
	ScanCompleted  ScanStatus = "completed"
	ScanFailed     ScanStatus = "failed"
	ScanCancelled  ScanStatus = "cancelled"
)

// ScanSession tracks one scan invocation. Sessions are never deleted so the
// table doubles as an audit trail.
type ScanSession struct {
	ID             string     `json:"session_id"`
	Root           string     `json:"root"`
	Recursive      bool       `json:"recursive"`
	Status         ScanStatus `json:"status"`
	TotalFiles     int        `json:"total_files"`
	ProcessedFiles int        `json:"processed_files"`
	FailedFiles    int        `json:"failed_files"`
	ResumeCursor   string     `json:"resume_cursor"`
	ErrorMessage   string     `json:"error_message"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

// ProgressPercent returns scan progress in the range [0,100].
func (s *ScanSession) ProgressPercent() float64 {
	if s.TotalFiles <= 0 {
		return 0
	}
	return float64(s.ProcessedFiles) / float64(s.TotalFiles) * 100
}

// GroupStatus is the review state of a duplicate group.
type GroupStatus string

const (
	GroupPending  GroupStatus = "pending"
	GroupReviewed GroupStatus = "reviewed"
)

// Action is the review decision applied to a duplicate group.
type Action int

const (
	ActionNone Action = iota
	ActionKeep
	ActionDelete
	ActionFavorite
	ActionDecideLater
)

var actionNames = map[Action]string{
	ActionNone:        "none",
	ActionKeep:        "keep",
	ActionDelete:      "delete",
	ActionFavorite:    "favorite",
	ActionDecideLater: "decide_later",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ParseAction converts the wire form of a review decision into an Action.
func ParseAction(s string) (Action, error) {
	switch s {
	case "none":
		return ActionNone, nil
	case "keep":
		return ActionKeep, nil
	case "delete":
		return ActionDelete, nil
	case "favorite":
		return ActionFavorite, nil
	case "decide_later":
		return ActionDecideLater, nil
	default:
		return ActionNone, fmt.Errorf("%w: unknown action %q", ErrInvalidArgument, s)
	}
}

// DuplicateGroup is a connected component of perceptually similar files.
// MemberIDs are ordered by capture timestamp descending, ties by ascending id.
type DuplicateGroup struct {
	ID              string      `json:"group_id"`
	Threshold       int         `json:"threshold"`
	MemberIDs       []int64     `json:"member_ids"`
	SimilarityScore float64     `json:"similarity_score"`
	Status          GroupStatus `json:"status"`
	Action          Action      `json:"action"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Contains reports whether id is a member of the group.
func (g *DuplicateGroup) Contains(id int64) bool {
	for _, m := range g.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}

// PlannedMove is one entry of an organize plan.
type PlannedMove struct {
	FileID      int64      `json:"file_id"`
	Source      string     `json:"source_path"`
	Destination string     `json:"destination_path"`
	CaptureTime *time.Time `json:"capture_time"`
}

// OrganizeResult summarizes an organize run.
type OrganizeResult struct {
	Moved      int           `json:"files_moved"`
	Skipped    int           `json:"files_skipped"`
	Failed     int           `json:"files_failed"`
	Unresolved []string      `json:"unresolved"`
	Plan       []PlannedMove `json:"plan,omitempty"`
	Errors     []string      `json:"errors,omitempty"`
}

// LibraryStats is the aggregate view over the catalog.
type LibraryStats struct {
	TotalFiles     int  `json:"total_files"`
	TotalFavorites int  `json:"total_favorites"`
	OrganizedFiles int  `json:"organized_files"`
	PendingGroups  int  `json:"pending_duplicate_groups"`
	MinYear        int  `json:"min_year"`
	MaxYear        int  `json:"max_year"`
	HasDates       bool `json:"has_dates"`
}
