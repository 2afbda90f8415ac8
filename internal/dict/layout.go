package dict

import (
	"fmt"
	"math/bits"
)

// computeLayout assigns an absolute Span to every field in declaration
// order, carrying the previous field's end offset forward to resolve
// @prev ranges. It is a pure function of the field list; encode and decode
// both read the spans it produces, so the two sides are layout-symmetric
// by construction.
//
// Returns the total frame length (max end offset + 1).
func computeLayout(fields []*Field, ranges []ByteRange, masks []uint64) (int, error) {
	size := 0
	prevEnd := -1
	for i, f := range fields {
		r := ranges[i]
		span := Span{}
		switch {
		case r.IsZero():
			return 0, fmt.Errorf("field %q: missing bytes", f.Name)
		case r.Prev:
			if i == 0 {
				return 0, fmt.Errorf("field %q: %s is not valid for the first field", f.Name, PrevSentinel)
			}
			span.Start = prevEnd + 1
			span.End = span.Start + f.Type.Size - 1
		default:
			if r.Start < 0 || r.End < r.Start {
				return 0, fmt.Errorf("field %q: bad byte range %s", f.Name, r)
			}
			span.Start, span.End = r.Start, r.End
		}

		if w := span.Width(); w != f.Type.Size {
			return 0, fmt.Errorf("field %q: range %s spans %d bytes but type %s is %d",
				f.Name, r, w, f.Type.Name, f.Type.Size)
		}

		if mask := masks[i]; mask != 0 {
			if !f.Type.IsIntegral() {
				return 0, fmt.Errorf("field %q: mask requires an integer type, got %s", f.Name, f.Type.Name)
			}
			if f.Type.Bits < 64 && mask >= 1<<uint(f.Type.Bits) {
				return 0, fmt.Errorf("field %q: mask 0x%X exceeds %s width", f.Name, mask, f.Type.Name)
			}
			span.Mask = mask
			span.Shift = uint(bits.TrailingZeros64(mask))
		}

		f.Span = span
		prevEnd = span.End
		if span.End+1 > size {
			size = span.End + 1
		}
	}
	return size, nil
}
