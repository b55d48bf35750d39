package cache

import "time"

// Status is the outcome of classifying a stored entry against a request.
type Status int

const (
	// Absent means no entry is stored.
	Absent Status = iota

	// Fresh means the entry can be served.
	Fresh

	// Stale means the entry is at least TTL old.
	Stale

	// VersionMismatch means the entry was written with another schema version.
	VersionMismatch

	// FilterMismatch means the entry belongs to different filters.
	FilterMismatch
)

// String returns the label used in logs and metrics.
func (s Status) String() string {
	switch s {
	case Absent:
		return "absent"
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case VersionMismatch:
		return "version_mismatch"
	case FilterMismatch:
		return "filter_mismatch"
	default:
		return "unknown"
	}
}

// Hit reports whether the status allows serving the entry.
func (s Status) Hit() bool {
	return s == Fresh
}

// Evictable reports whether an entry with this status should be deleted.
// FilterMismatch is not evictable: the entry may still be valid for its own filters.
func (s Status) Evictable() bool {
	return s == Stale || s == VersionMismatch
}

// Classify decides whether entry can answer a request for filters at now.
// It has no side effects. Checks run in order: presence, version, age, filters.
func Classify(entry *Entry, filters Filters, now time.Time, version string, ttl time.Duration) Status {
	if entry == nil {
		return Absent
	}
	if entry.Version != version {
		return VersionMismatch
	}
	if entry.IsExpired(now, ttl) {
		return Stale
	}
	if entry.Filters != filters {
		return FilterMismatch
	}
	return Fresh
}
