// Package action maps agent decisions to control actions and writes them
// where the simulator reads them.
package action

import (
	"fmt"

	"github.com/spachava753/nsoran/internal/models"
)

// BoolVectorWidth is the number of flags produced by IndexToBoolVector.
const BoolVectorWidth = 7

// Mapper is a bijection between flat action indices and the closed range
// [Min, Max]. It has no state beyond its bounds.
type Mapper struct {
	Min int
	Max int
}

// NewMapper returns a mapper over [min, max].
func NewMapper(min, max int) (Mapper, error) {
	if min > max {
		return Mapper{}, fmt.Errorf("invalid action range [%d, %d]", min, max)
	}
	return Mapper{Min: min, Max: max}, nil
}

// Len returns the number of distinct actions.
func (m Mapper) Len() int {
	return m.Max - m.Min + 1
}

// IndexToValue returns the value at offset idx of the range. Valid indices
// are 0 through Len()-1.
func (m Mapper) IndexToValue(idx int) (int, error) {
	if idx < 0 || idx >= m.Len() {
		return 0, fmt.Errorf("%w: index %d not in [0, %d]", models.ErrIndexOutOfRange, idx, m.Len()-1)
	}
	return m.Min + idx, nil
}

// ValueToIndex is the inverse of IndexToValue.
func (m Mapper) ValueToIndex(v int) (int, error) {
	if v < m.Min || v > m.Max {
		return 0, fmt.Errorf("%w: value %d not in [%d, %d]", models.ErrIndexOutOfRange, v, m.Min, m.Max)
	}
	return v - m.Min, nil
}

// IndexToBoolVector expands idx into BoolVectorWidth flags, most significant
// bit first. idx must lie in [Min, Max] and fit in BoolVectorWidth bits.
func (m Mapper) IndexToBoolVector(idx int) ([]bool, error) {
	if idx < m.Min || idx > m.Max {
		return nil, fmt.Errorf("%w: index %d not in [%d, %d]", models.ErrIndexOutOfRange, idx, m.Min, m.Max)
	}
	if idx < 0 || idx >= 1<<BoolVectorWidth {
		return nil, fmt.Errorf("%w: index %d does not fit in %d bits", models.ErrIndexOutOfRange, idx, BoolVectorWidth)
	}

	out := make([]bool, BoolVectorWidth)
	for i := range out {
		out[i] = idx&(1<<(BoolVectorWidth-1-i)) != 0
	}
	return out, nil
}

// BoolVectorToIndex composes flags, most significant first, back into an
// index.
func BoolVectorToIndex(flags []bool) int {
	idx := 0
	for _, f := range flags {
		idx <<= 1
		if f {
			idx |= 1
		}
	}
	return idx
}
