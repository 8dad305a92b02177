// Package notify models change-notification records from the cluster and
// the filtering that decides which of them trigger lock enforcement.
package notify

import (
	"fmt"
	"sort"
	"strings"

	"lockwatch/internal/worm"
)

// Kind is one of the closed set of change-notification categories the
// cluster can deliver.
type Kind string

const (
	KindChildACLChanged        Kind = "child_acl_changed"
	KindChildAtimeChanged      Kind = "child_atime_changed"
	KindChildBtimeChanged      Kind = "child_btime_changed"
	KindChildMtimeChanged      Kind = "child_mtime_changed"
	KindChildDataWritten       Kind = "child_data_written"
	KindChildDirAdded          Kind = "child_dir_added"
	KindChildDirRemoved        Kind = "child_dir_removed"
	KindChildExtraAttrsChanged Kind = "child_extra_attrs_changed"
	KindChildFileAdded         Kind = "child_file_added"
	KindChildFileRemoved       Kind = "child_file_removed"
	KindChildOwnerChanged      Kind = "child_owner_changed"
	KindChildSizeChanged       Kind = "child_size_changed"
	KindSelfRemoved            Kind = "self_removed"
)

var allKinds = []Kind{
	KindChildACLChanged,
	KindChildAtimeChanged,
	KindChildBtimeChanged,
	KindChildMtimeChanged,
	KindChildDataWritten,
	KindChildDirAdded,
	KindChildDirRemoved,
	KindChildExtraAttrsChanged,
	KindChildFileAdded,
	KindChildFileRemoved,
	KindChildOwnerChanged,
	KindChildSizeChanged,
	KindSelfRemoved,
}

var kindSet = func() map[Kind]struct{} {
	set := make(map[Kind]struct{}, len(allKinds))
	for _, kind := range allKinds {
		set[kind] = struct{}{}
	}
	return set
}()

// Kinds returns every supported notification kind in stable order.
func Kinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// Known reports whether the value names a supported notification kind.
func (k Kind) Known() bool {
	_, ok := kindSet[k]
	return ok
}

func (k Kind) String() string { return string(k) }

// KindSet is an explicit membership set over notification kinds.
type KindSet map[Kind]struct{}

// NewKindSet validates the configured names against the closed enumeration;
// any unknown name is a configuration error.
func NewKindSet(names []string) (KindSet, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: at least one notification kind must be admitted", worm.ErrConfig)
	}
	set := make(KindSet, len(names))
	for _, name := range names {
		kind := Kind(strings.TrimSpace(name))
		if !kind.Known() {
			return nil, fmt.Errorf("%w: unknown notification kind %q", worm.ErrConfig, name)
		}
		set[kind] = struct{}{}
	}
	return set, nil
}

// Contains reports set membership.
func (s KindSet) Contains(kind Kind) bool {
	_, ok := s[kind]
	return ok
}

// Names returns the member kinds sorted, for server-side filters and logs.
func (s KindSet) Names() []string {
	names := make([]string, 0, len(s))
	for kind := range s {
		names = append(names, string(kind))
	}
	sort.Strings(names)
	return names
}
