package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapErrorClassification(t *testing.T) {
	inner := fmt.Errorf("disk gone")
	err := WrapError(ErrIOFailure, inner, "move", "/photos/a.jpg")

	if !errors.Is(err, ErrIOFailure) {
		t.Error("marker not detectable with errors.Is")
	}
	if !errors.Is(err, inner) {
		t.Error("inner error lost from the chain")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("wrong marker matched")
	}
	want := "io failure: move: /photos/a.jpg: disk gone"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func TestWrapErrorWithoutInner(t *testing.T) {
	err := WrapError(ErrNotFound, nil, "session", "abc")
	if !errors.Is(err, ErrNotFound) {
		t.Error("marker not detectable")
	}
	if err.Error() != "not found: session: abc" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestParseActionRoundTrip(t *testing.T) {
	for _, action := range []Action{ActionNone, ActionKeep, ActionDelete, ActionFavorite, ActionDecideLater} {
		parsed, err := ParseAction(action.String())
		if err != nil {
			t.Errorf("ParseAction(%s): %v", action, err)
		}
		if parsed != action {
			t.Errorf("round trip %s -> %s", action, parsed)
		}
	}

	if _, err := ParseAction("burn"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("unknown action: got %v, want ErrInvalidArgument", err)
	}
}

func TestProgressPercent(t *testing.T) {
	s := ScanSession{TotalFiles: 200, ProcessedFiles: 50}
	if got := s.ProgressPercent(); got != 25 {
		t.Errorf("ProgressPercent = %v, want 25", got)
	}
	empty := ScanSession{}
	if got := empty.ProgressPercent(); got != 0 {
		t.Errorf("empty session percent = %v, want 0", got)
	}
}
