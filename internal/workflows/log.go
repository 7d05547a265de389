package workflows

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/PolarWolf314/cryptdrive/internal/audit"
	kerrors "github.com/PolarWolf314/cryptdrive/internal/errors"
	"github.com/PolarWolf314/cryptdrive/internal/ui"
)

const dateLayout = "2006-01-02"

// LogOptions configures the log workflow.
type LogOptions struct {
	// Limit is the maximum number of entries to return. 0 means no limit.
	Limit int

	// Reverse lists the most recent entry first.
	Reverse bool

	// Operations filters by operation, comma separated.
	Operations string

	// Since and Until bound the entries by day, YYYY-MM-DD, inclusive.
	Since string
	Until string
}

// LogResult contains the outcome of a log operation.
type LogResult struct {
	Entries []audit.Entry

	// Total is the number of entries before filtering.
	Total int
}

// Log reads and filters the local activity log.
//
// Returns ErrNoFilesFound if nothing has been logged yet.
// Returns ErrInvalidDateFormat if Since or Until cannot be parsed.
func Log(ctx context.Context, opts LogOptions) (*LogResult, error) {
	var since, until time.Time
	var err error
	if opts.Since != "" {
		if since, err = time.Parse(dateLayout, opts.Since); err != nil {
			return nil, fmt.Errorf("%w: --since must be YYYY-MM-DD", kerrors.ErrInvalidDateFormat)
		}
	}
	if opts.Until != "" {
		if until, err = time.Parse(dateLayout, opts.Until); err != nil {
			return nil, fmt.Errorf("%w: --until must be YYYY-MM-DD", kerrors.ErrInvalidDateFormat)
		}
		until = until.Add(24*time.Hour - time.Nanosecond)
	}

	entries, err := audit.ReadEntries()
	if err != nil {
		return nil, fmt.Errorf("reading activity log: %w", err)
	}
	if entries == nil {
		return nil, kerrors.ErrNoFilesFound
	}

	ops := make(map[string]bool)
	for _, op := range strings.Split(opts.Operations, ",") {
		if op = strings.ToLower(strings.TrimSpace(op)); op != "" {
			ops[op] = true
		}
	}

	filtered := make([]audit.Entry, 0, len(entries))
	for _, e := range entries {
		if len(ops) > 0 && !ops[strings.ToLower(e.Operation)] {
			continue
		}
		if !since.IsZero() || !until.IsZero() {
			ts, err := parseTimestamp(e.Timestamp)
			if err != nil {
				continue
			}
			if !since.IsZero() && ts.Before(since) {
				continue
			}
			if !until.IsZero() && ts.After(until) {
				continue
			}
		}
		filtered = append(filtered, e)
	}

	// Limit keeps the most recent entries in either order.
	if opts.Limit > 0 && len(filtered) > opts.Limit {
		filtered = filtered[len(filtered)-opts.Limit:]
	}
	if opts.Reverse {
		slices.Reverse(filtered)
	}

	return &LogResult{Entries: filtered, Total: len(entries)}, nil
}

func parseTimestamp(ts string) (time.Time, error) {
	t, err := time.Parse(audit.TimestampFormat, ts)
	if err != nil {
		t, err = time.Parse(time.RFC3339, ts)
	}
	return t, err
}

// FormatDateTime formats a timestamp as local YYYY-MM-DD HH:MM:SS.
func FormatDateTime(ts string) string {
	t, err := parseTimestamp(ts)
	if err != nil {
		if len(ts) >= 19 {
			return ts[:19]
		}
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// FormatDetails summarises what an entry touched.
func FormatDetails(e audit.Entry) string {
	switch e.Operation {
	case "upload":
		if e.FailedCount > 0 {
			return fmt.Sprintf("%d files, %s, %d failed", e.FilesCount, ui.FormatBytes(e.Bytes), e.FailedCount)
		}
		if len(e.Files) == 1 {
			return fmt.Sprintf("%s, %s", e.Files[0], ui.FormatBytes(e.Bytes))
		}
		return fmt.Sprintf("%d files, %s", e.FilesCount, ui.FormatBytes(e.Bytes))
	case "download", "download_folder":
		return e.OutputPath
	case "share_folder", "share_file":
		details := fmt.Sprintf("%s (%s)", strings.Join(e.Recipients, ", "), e.AccessLevel)
		if e.FailedCount > 0 {
			details += fmt.Sprintf(", %d failed", e.FailedCount)
		}
		return details
	case "mkdir":
		return e.FolderID
	default:
		return ""
	}
}
