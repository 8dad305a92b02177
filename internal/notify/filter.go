package notify

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"lockwatch/internal/qumulo"
)

// WatchTarget is the resolved root the daemon watches. Immutable for the
// daemon's lifetime.
type WatchTarget struct {
	// RootID is the stable numeric reference of the watched root.
	RootID uint64
	// RootPath is the absolute cluster path of the watched root.
	RootPath string
	// Recursive extends the watch to the whole subtree.
	Recursive bool
}

// Event is a change notification admitted by the filter. Path is absolute.
type Event struct {
	Kind      Kind
	Path      string
	FileID    uint64
	Timestamp time.Time
}

// Key identifies the affected file for debouncing and mutual exclusion:
// the stable file id when the record carried one, the absolute path
// otherwise.
func (e Event) Key() string {
	if e.FileID != 0 {
		return "id:" + strconv.FormatUint(e.FileID, 10)
	}
	return e.Path
}

// Ref converts the event into a file reference for lock calls.
func (e Event) Ref() qumulo.FileRef {
	if e.FileID != 0 {
		return qumulo.RefByID(e.FileID)
	}
	return qumulo.RefByPath(e.Path)
}

var duplicateSlashes = regexp.MustCompile(`/+`)

// Filter admits raw notification records. It is a pure function of the
// record, the admitted kind set, and the watch target; now is injectable
// for records that arrive without a timestamp.
type Filter struct {
	Target   WatchTarget
	Admitted KindSet

	// Now supplies event timestamps when the record omits one. Defaults
	// to time.Now.
	Now func() time.Time
}

// Admit resolves a raw record against the watch target and reports whether
// it qualifies for lock enforcement. Unknown or unadmitted kinds and
// records outside the watch scope are discarded silently.
func (f Filter) Admit(raw qumulo.RawNotification) (Event, bool) {
	kind := Kind(strings.TrimSpace(raw.Type))
	if !kind.Known() || !f.Admitted.Contains(kind) {
		return Event{}, false
	}

	relative := strings.Trim(strings.TrimSpace(raw.Path), "/")
	if relative == "" {
		// Events about the watched root itself carry no child path;
		// there is no file to lock.
		return Event{}, false
	}
	if !f.Target.Recursive && strings.Contains(relative, "/") {
		return Event{}, false
	}

	absolute := duplicateSlashes.ReplaceAllString(f.Target.RootPath+"/"+relative, "/")

	var fileID uint64
	if trimmed := strings.TrimSpace(raw.ID); trimmed != "" {
		if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			fileID = parsed
		}
	}

	timestamp := f.parseTimestamp(raw.Timestamp)
	return Event{Kind: kind, Path: absolute, FileID: fileID, Timestamp: timestamp}, true
}

func (f Filter) parseTimestamp(raw string) time.Time {
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
			return parsed.UTC()
		}
	}
	if f.Now != nil {
		return f.Now().UTC()
	}
	return time.Now().UTC()
}
