package file

import (
	"strconv"
	"strings"
	"time"
)

// FilterKind selects which field a listing filters on.
type FilterKind int

// Filter kinds.
const (
	Unfiltered FilterKind = iota
	ByName
	ByStorageKey
	BySizeAtMost
	ByType
	ByDateRange
)

// String returns the stable name of the kind.
func (k FilterKind) String() string {
	switch k {
	case ByName:
		return "name"
	case ByStorageKey:
		return "key"
	case BySizeAtMost:
		return "size"
	case ByType:
		return "type"
	case ByDateRange:
		return "range"
	default:
		return "all"
	}
}

// Filter is a listing predicate. Only the fields belonging to Kind are meaningful;
// use the constructors rather than building values by hand.
type Filter struct {
	Kind    FilterKind
	Text    string
	MaxSize int64
	Start   *time.Time
	End     *time.Time
}

// NoFilter matches every record.
func NoFilter() Filter { return Filter{Kind: Unfiltered} }

// NameContains matches records whose display name contains s, ignoring case.
func NameContains(s string) Filter { return Filter{Kind: ByName, Text: s} }

// KeyContains matches records whose storage key contains s, ignoring case.
func KeyContains(s string) Filter { return Filter{Kind: ByStorageKey, Text: s} }

// TypeContains matches records whose type contains s, ignoring case.
func TypeContains(s string) Filter { return Filter{Kind: ByType, Text: s} }

// SizeAtMost matches records no larger than n bytes.
func SizeAtMost(n int64) Filter { return Filter{Kind: BySizeAtMost, MaxSize: n} }

// UploadedBetween matches records uploaded within [start, end]. Either bound may be nil.
func UploadedBetween(start, end *time.Time) Filter {
	return Filter{Kind: ByDateRange, Start: start, End: end}
}

// ParseFilter maps the legacy field/query pair onto a Filter.
// An empty or unrecognised field, or a size that is not a number, yields NoFilter
// so older clients keep getting the full listing. Only a negative size is rejected.
func ParseFilter(field, query string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "filename", "name":
		return NameContains(query), nil
	case "filepath", "key":
		return KeyContains(query), nil
	case "filetype", "type":
		return TypeContains(query), nil
	case "filesize", "size":
		n, err := strconv.ParseInt(strings.TrimSpace(query), 10, 64)
		if err != nil {
			return NoFilter(), nil
		}
		if n < 0 {
			return Filter{}, ValidationError.New("invalid size %q", query)
		}
		return SizeAtMost(n), nil
	default:
		return NoFilter(), nil
	}
}
