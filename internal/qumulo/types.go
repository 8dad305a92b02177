package qumulo

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// FileRef identifies a file or directory on the cluster either by its
// stable numeric id or by an absolute path.
type FileRef struct {
	ID   uint64
	Path string
}

// RefByID builds a FileRef from a numeric file id.
func RefByID(id uint64) FileRef { return FileRef{ID: id} }

// RefByPath builds a FileRef from an absolute cluster path.
func RefByPath(path string) FileRef { return FileRef{Path: path} }

// IsZero reports whether the ref identifies nothing.
func (r FileRef) IsZero() bool { return r.ID == 0 && r.Path == "" }

// segment renders the ref as a URL path segment: numeric ids verbatim,
// paths fully escaped (including slashes) the way the cluster API expects.
func (r FileRef) segment() string {
	if r.ID != 0 {
		return strconv.FormatUint(r.ID, 10)
	}
	return url.PathEscape(r.Path)
}

func (r FileRef) String() string {
	if r.ID != 0 {
		return fmt.Sprintf("id:%d", r.ID)
	}
	return r.Path
}

// FileAttr is the subset of file attributes the daemon needs: identity and
// the file type used to reject non-regular lock targets.
type FileAttr struct {
	ID   uint64
	Path string
	Type string
}

const (
	// FileTypeFile is the attribute type of a regular file.
	FileTypeFile = "FS_FILE_TYPE_FILE"
	// FileTypeDirectory is the attribute type of a directory.
	FileTypeDirectory = "FS_FILE_TYPE_DIRECTORY"
)

// IsRegularFile reports whether the attributes describe a lockable file.
func (a FileAttr) IsRegularFile() bool { return a.Type == FileTypeFile }

// LockResult is the raw outcome of a lock query. RetentionPeriod carries
// the cluster's timestamp text untouched; nil means no retention is set.
// Validation of the timestamp is the classifier's job, not the client's.
type LockResult struct {
	LegalHold       bool
	RetentionPeriod *string
}

// fileAttrPayload is the wire shape of the attributes endpoint. The cluster
// serializes file ids as decimal strings.
type fileAttrPayload struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Type string `json:"type"`
}

func (p fileAttrPayload) toAttr() (FileAttr, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(p.ID), 10, 64)
	if err != nil {
		return FileAttr{}, fmt.Errorf("file id %q: %w", p.ID, err)
	}
	return FileAttr{ID: id, Path: p.Path, Type: p.Type}, nil
}

// lockPayload is the wire shape of both the lock query response and the
// lock set request body.
type lockPayload struct {
	Lock lockBody `json:"lock"`
}

type lockBody struct {
	LegalHold bool `json:"legal_hold"`
	// omitempty: a nil retention must leave the field out of the set
	// request entirely. A server may read an explicit null as "clear
	// retention", which would shorten an existing WORM deadline.
	RetentionPeriod *string `json:"retention_period,omitempty"`
}
