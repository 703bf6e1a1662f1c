package pagination

import "errors"

// ErrInvalidLimit is returned for a zero or negative page size.
var ErrInvalidLimit = errors.New("limit must be a positive integer")

// Limits holds the default and maximum page sizes.
type Limits struct {
	Default int
	Max     int
}

// Resolve turns a requested page size into the one to query with.
// Absent means the default; values above Max are clamped.
func (l Limits) Resolve(requested *int) (int, error) {
	if requested == nil {
		return l.Default, nil
	}
	if *requested <= 0 {
		return 0, ErrInvalidLimit
	}
	if *requested > l.Max {
		return l.Max, nil
	}
	return *requested, nil
}
