package binary

import (
	"fmt"

	"github.com/wasmine-go/wasmine/internal/reader"
	"github.com/wasmine-go/wasmine/internal/wasm"
)

// decodeLimits decodes the shared (flags, min[, max]) encoding used by both
// table and memory types.
func decodeLimits(r *reader.Reader) (wasm.Limits, error) {
	flags, err := r.Byte()
	if err != nil {
		return wasm.Limits{}, err
	}
	if flags > 1 {
		return wasm.Limits{}, fmt.Errorf("invalid limits flag %#x at offset %d", flags, r.Offset())
	}
	min, err := r.VarUint32()
	if err != nil {
		return wasm.Limits{}, err
	}
	l := wasm.Limits{Min: min}
	if flags == 1 {
		max, err := r.VarUint32()
		if err != nil {
			return wasm.Limits{}, err
		}
		if max < min {
			return wasm.Limits{}, fmt.Errorf("%w: min %d > max %d", wasm.ErrLimitsMinGreaterMax, min, max)
		}
		l.Max, l.HasMax = max, true
	}
	return l, nil
}
