package protocol

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RotateMode selects the time boundary at which log files are rotated.
type RotateMode int

// Rotate modes
const (
	RotateNone RotateMode = iota
	RotateHourly
	RotateDaily
	RotateWeekly
	RotateMonthly
)

// String returns the string representation of RotateMode
func (m RotateMode) String() string {
	switch m {
	case RotateNone:
		return "none"
	case RotateHourly:
		return "hourly"
	case RotateDaily:
		return "daily"
	case RotateWeekly:
		return "weekly"
	case RotateMonthly:
		return "monthly"
	default:
		return "unknown"
	}
}

// ParseRotateMode returns the mode named by value, compared
// case-insensitively. Unknown names return the supplied default.
func ParseRotateMode(value string, def RotateMode) RotateMode {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "none":
		return RotateNone
	case "hourly":
		return RotateHourly
	case "daily":
		return RotateDaily
	case "weekly":
		return RotateWeekly
	case "monthly":
		return RotateMonthly
	default:
		return def
	}
}

// rotateTimestampLayout is the UTC timestamp appended to rotating log
// file names, chosen so lexical order equals chronological order.
const rotateTimestampLayout = "2006-01-02-15-04-05"

// rotater tracks the time boundary of the currently open log file and
// detects when a write crosses into the next period.
type rotater struct {
	mode        RotateMode
	periodStart time.Time
}

// initialize records the period containing fileDate as current.
func (r *rotater) initialize(fileDate time.Time) {
	r.periodStart = r.truncate(fileDate.UTC())
}

// update returns true when now falls into a later period than the one
// recorded, advancing the recorded period.
func (r *rotater) update(now time.Time) bool {
	if r.mode == RotateNone {
		return false
	}
	start := r.truncate(now.UTC())
	if start.After(r.periodStart) {
		r.periodStart = start
		return true
	}
	return false
}

// truncate maps t to the start of its rotation period.
func (r *rotater) truncate(t time.Time) time.Time {
	switch r.mode {
	case RotateHourly:
		return t.Truncate(time.Hour)
	case RotateDaily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case RotateWeekly:
		// Weeks start on Monday.
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case RotateMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// rotatedFileName appends a UTC timestamp to the base file name:
// "dir/log.sil" becomes "dir/log-2023-05-22-12-00-00.sil".
func rotatedFileName(baseName string, t time.Time) string {
	dir := filepath.Dir(baseName)
	base := filepath.Base(baseName)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, stem+"-"+t.UTC().Format(rotateTimestampLayout)+ext)
}

// rotatedFileTime parses the timestamp encoded in a rotated file name.
func rotatedFileTime(baseName, fileName string) (time.Time, bool) {
	base := filepath.Base(baseName)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	name := filepath.Base(fileName)
	if !strings.HasPrefix(name, stem+"-") || !strings.HasSuffix(name, ext) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, stem+"-"), ext)
	t, err := time.ParseInLocation(rotateTimestampLayout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// rotatedFile is one log part found on disk.
type rotatedFile struct {
	path  string
	stamp time.Time
}

// listRotatedFiles returns the log parts matching baseName's rotation
// pattern, ordered oldest first. Files whose timestamp fails to parse are
// ignored. Ties are broken by filesystem mtime.
func listRotatedFiles(baseName string) ([]rotatedFile, error) {
	dir := filepath.Dir(baseName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []rotatedFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		stamp, ok := rotatedFileTime(baseName, path)
		if !ok {
			continue
		}
		out = append(out, rotatedFile{path: path, stamp: stamp})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].stamp.Equal(out[j].stamp) {
			return out[i].stamp.Before(out[j].stamp)
		}
		return mtime(out[i].path).Before(mtime(out[j].path))
	})
	return out, nil
}

func mtime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// latestRotatedFile returns the newest existing log part, if any.
func latestRotatedFile(baseName string) (string, bool) {
	files, err := listRotatedFiles(baseName)
	if err != nil || len(files) == 0 {
		return "", false
	}
	return files[len(files)-1].path, true
}

// pruneRotatedFiles deletes the oldest log parts until at most maxParts
// remain. A maxParts of zero disables pruning.
func pruneRotatedFiles(baseName string, maxParts int) error {
	if maxParts <= 0 {
		return nil
	}
	files, err := listRotatedFiles(baseName)
	if err != nil {
		return err
	}
	for len(files) > maxParts {
		if err := os.Remove(files[0].path); err != nil {
			return err
		}
		files = files[1:]
	}
	return nil
}
