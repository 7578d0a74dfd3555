// Package constellation implements the BPSK/QPSK slicer and mapper shared
// by the carrier phase recovery, MER and soft demapper blocks.
package constellation

import "math"

// Order is the constellation cardinality (points per symbol).
type Order int

const (
	BPSK Order = 2
	QPSK Order = 4
)

// BitsPerSymbol returns log2(order).
func (o Order) BitsPerSymbol() int {
	switch o {
	case BPSK:
		return 1
	case QPSK:
		return 2
	default:
		return 0
	}
}

func (o Order) String() string {
	switch o {
	case BPSK:
		return "BPSK"
	case QPSK:
		return "QPSK"
	default:
		return "unknown"
	}
}

// a is the unit-average-power QPSK axis magnitude, 1/sqrt(2).
const a = 1 / math.Sqrt2

// Constellation holds the Gray-coded point table for a BPSK or QPSK order.
type Constellation struct {
	Order  Order
	points []complex128
}

// New builds the constellation table for order. BPSK is {-1, +1} on the
// real axis; QPSK is {-a-aj, +a-aj, -a+aj, +a+aj} indexed by (xim<<1|xre).
func New(order Order) *Constellation {
	c := &Constellation{Order: order}
	switch order {
	case BPSK:
		c.points = []complex128{-1, 1}
	default:
		c.points = []complex128{
			complex(-a, -a),
			complex(a, -a),
			complex(-a, a),
			complex(a, a),
		}
	}
	return c
}

// b is the branchless binary slicer: 1 if x >= 0, else 0.
func b(x float64) int {
	if x >= 0 {
		return 1
	}
	return 0
}

// Slice returns the nearest constellation point to y using the
// per-axis branchless slicer; for BPSK the imaginary axis is masked out.
func (c *Constellation) Slice(y complex128) complex128 {
	xre := b(real(y))
	xim := 0
	if c.Order == QPSK {
		xim = b(imag(y))
	}
	return c.points[(xim<<1)|xre]
}

// Demap returns the constellation index in [0, order) nearest to y.
func (c *Constellation) Demap(y complex128) int {
	xre := b(real(y))
	xim := 0
	if c.Order == QPSK {
		xim = b(imag(y))
	}
	return (xim << 1) | xre
}

// Point returns the constellation point at idx.
func (c *Constellation) Point(idx int) complex128 {
	return c.points[idx]
}

// Points returns the full table, caller must not mutate it.
func (c *Constellation) Points() []complex128 {
	return c.points
}
