// Package exifdate extracts capture timestamps from image metadata. Files
// without usable EXIF data report no timestamp; callers decide how to treat
// them.
package exifdate

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	exiftool "github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"

	"photosorter/logging"
)

const exiftoolTimeLayout = "2006:01:02 15:04:05"

// Provider reads capture timestamps. JPEG and TIFF are decoded in-process;
// HEIC/HEIF fall back to an exiftool child process when one is available.
type Provider struct {
	mu       sync.Mutex
	et       *exiftool.Exiftool
	etFailed bool
}

// New returns a Provider. The exiftool process is started lazily on the
// first HEIC/HEIF file.
func New() *Provider {
	return &Provider{}
}

// Close stops the exiftool child process if one was started.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.et != nil {
		_ = p.et.Close()
		p.et = nil
	}
}

// CaptureTime returns the capture timestamp of the image at path, preferring
// DateTimeOriginal over DateTime. The second return value is false when no
// timestamp could be resolved.
func (p *Provider) CaptureTime(path string) (time.Time, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".heic" || ext == ".heif" {
		return p.captureTimeExiftool(path)
	}

	f, err := os.Open(path)
	if err != nil {
		logging.DebugLog("EXIF open error for %s: %v", path, err)
		return time.Time{}, false
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, false
	}

	// DateTime prefers DateTimeOriginal and falls back to DateTime.
	ts, err := x.DateTime()
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func (p *Provider) captureTimeExiftool(path string) (time.Time, bool) {
	et := p.tool()
	if et == nil {
		return time.Time{}, false
	}

	metas := et.ExtractMetadata(path)
	if len(metas) == 0 {
		return time.Time{}, false
	}
	meta := metas[0]
	if meta.Err != nil {
		logging.DebugLog("exiftool error for %s: %v", path, meta.Err)
		return time.Time{}, false
	}

	for _, field := range []string{"DateTimeOriginal", "CreateDate", "ModifyDate"} {
		raw, err := meta.GetString(field)
		if err != nil {
			continue
		}
		if ts, err := time.ParseInLocation(exiftoolTimeLayout, raw, time.Local); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func (p *Provider) tool() *exiftool.Exiftool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.et != nil || p.etFailed {
		return p.et
	}
	et, err := exiftool.NewExiftool()
	if err != nil {
		logging.LogWarning("exiftool unavailable, HEIC capture times will be skipped: %v", err)
		p.etFailed = true
		return nil
	}
	p.et = et
	return p.et
}
