package radix

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidColumn marks a column that cannot be ordered: not integral
	// or holding negative values.
	ErrInvalidColumn = errors.New("invalid column")
	// ErrCapacityExceeded marks inputs beyond the batch, chunk or key
	// limits.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrInternalInvariant marks broken bookkeeping between stages.
	ErrInternalInvariant = errors.New("internal invariant violated")
)

func invalidColumnf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidColumn)
}

func capacityf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrCapacityExceeded)
}

func invariantf(format string, args ...any) error {
	return errors.Mark(errors.AssertionFailedf(format, args...), ErrInternalInvariant)
}
