// Package lattice implements the minimal crystallographic primitives the
// generator needs: cell-matrix construction, fractional/Cartesian
// conversion, volume, and angle normalization. It intentionally does not
// attempt space-group detection or Niggli reduction — those remain the
// provided library's job per the engine's scope.
package lattice

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Cell is the six scalar lattice parameters: three lengths in Å, three
// angles in degrees.
type Cell struct {
	A, B, C               float64
	Alpha, Beta, Gamma    float64
}

// Atom is one atom of a candidate, in Cartesian Å.
type Atom struct {
	AtomicNumber int
	X, Y, Z      float64
}

const degToRad = math.Pi / 180.0

// Matrix builds the 3x3 cell matrix (row vectors a, b, c in Cartesian Å)
// using the standard crystallographic convention: a along x, b in the xy
// plane.
func Matrix(c Cell) *mat.Dense {
	alpha := c.Alpha * degToRad
	beta := c.Beta * degToRad
	gamma := c.Gamma * degToRad

	ax, ay, az := c.A, 0.0, 0.0
	bx, by, bz := c.B*math.Cos(gamma), c.B*math.Sin(gamma), 0.0

	cx := c.C * math.Cos(beta)
	cy := c.C * (math.Cos(alpha) - math.Cos(beta)*math.Cos(gamma)) / math.Sin(gamma)
	cz2 := c.C*c.C - cx*cx - cy*cy
	if cz2 < 0 {
		cz2 = 0
	}
	cz := math.Sqrt(cz2)

	return mat.NewDense(3, 3, []float64{
		ax, ay, az,
		bx, by, bz,
		cx, cy, cz,
	})
}

// Volume returns the cell volume in Å³.
func Volume(c Cell) float64 {
	m := Matrix(c)
	// Volume of a parallelepiped is |a . (b x c)|; compute directly from rows.
	ax, ay, az := m.At(0, 0), m.At(0, 1), m.At(0, 2)
	bx, by, bz := m.At(1, 0), m.At(1, 1), m.At(1, 2)
	cx, cy, cz := m.At(2, 0), m.At(2, 1), m.At(2, 2)
	cross := [3]float64{
		by*cz - bz*cy,
		bz*cx - bx*cz,
		bx*cy - by*cx,
	}
	return math.Abs(ax*cross[0] + ay*cross[1] + az*cross[2])
}

// FracToCart converts a fractional coordinate to Cartesian Å using the cell
// matrix (row-vector convention: cart = frac * M).
func FracToCart(c Cell, frac [3]float64) [3]float64 {
	m := Matrix(c)
	var out [3]float64
	for j := 0; j < 3; j++ {
		out[j] = frac[0]*m.At(0, j) + frac[1]*m.At(1, j) + frac[2]*m.At(2, j)
	}
	return out
}

// CartToFrac converts a Cartesian Å coordinate to fractional, inverting the
// cell matrix.
func CartToFrac(c Cell, cart [3]float64) [3]float64 {
	m := Matrix(c)
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return [3]float64{}
	}
	var out [3]float64
	for j := 0; j < 3; j++ {
		out[j] = cart[0]*inv.At(0, j) + cart[1]*inv.At(1, j) + cart[2]*inv.At(2, j)
	}
	return out
}

// RescaleVolume returns a Cell scaled uniformly so its volume equals target,
// preserving angles and length ratios.
func RescaleVolume(c Cell, target float64) Cell {
	current := Volume(c)
	if current < 1e-12 {
		return c
	}
	factor := math.Cbrt(target / current)
	out := c
	out.A *= factor
	out.B *= factor
	out.C *= factor
	return out
}

// Pinned reports whether the lattice parameter with bounds [min,max] is
// fixed (min == max).
func Pinned(min, max float64) bool {
	return min == max
}

// FixAngles normalizes a cell's angles into [60,120] degrees by reflecting
// whichever axis is implicated in an out-of-range angle, carrying the
// associated atoms' fractional coordinates along so the physical structure
// is preserved. It is a bounded, practical normalization — not a full
// Niggli reduction — sufficient for the strain magnitudes the stripple and
// permustrain operators produce.
func FixAngles(c Cell, atoms []Atom) (Cell, []Atom) {
	frac := make([][3]float64, len(atoms))
	for i, at := range atoms {
		frac[i] = CartToFrac(c, [3]float64{at.X, at.Y, at.Z})
	}

	for iter := 0; iter < 6; iter++ {
		if inRange(c.Alpha) && inRange(c.Beta) && inRange(c.Gamma) {
			break
		}
		switch {
		case !inRange(c.Gamma) || !inRange(c.Alpha):
			// Negate b: flips gamma (a,b) and alpha (b,c); leaves beta (a,c).
			c.Gamma = 180 - c.Gamma
			c.Alpha = 180 - c.Alpha
			for i := range frac {
				frac[i][1] = math.Mod(1-frac[i][1], 1)
			}
		case !inRange(c.Beta):
			// Negate a: flips beta (a,c) and gamma (a,b); leaves alpha (b,c).
			c.Beta = 180 - c.Beta
			c.Gamma = 180 - c.Gamma
			for i := range frac {
				frac[i][0] = math.Mod(1-frac[i][0], 1)
			}
		}
	}

	// Defensive clamp for strain magnitudes too large for reflection alone
	// to resolve in the iteration budget above.
	c.Alpha = clamp(c.Alpha, 60, 120)
	c.Beta = clamp(c.Beta, 60, 120)
	c.Gamma = clamp(c.Gamma, 60, 120)

	outAtoms := make([]Atom, len(atoms))
	for i, at := range atoms {
		cart := FracToCart(c, frac[i])
		outAtoms[i] = Atom{AtomicNumber: at.AtomicNumber, X: cart[0], Y: cart[1], Z: cart[2]}
	}
	return c, outAtoms
}

func inRange(angle float64) bool {
	return angle >= 60 && angle <= 120
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Strain applies a symmetric 3x3 strain increment to the cell's Cartesian
// matrix (new = old * (I + eps)) and re-derives the six scalar parameters
// from the resulting row vectors, the representation stripple and
// permustrain use to perturb cells.
func Strain(c Cell, eps [3][3]float64) Cell {
	m := Matrix(c)
	var rows [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := 0.0
			for k := 0; k < 3; k++ {
				factor := eps[k][j]
				if j == k {
					factor += 1
				}
				v += m.At(i, k) * factor
			}
			rows[i][j] = v
		}
	}
	return cellFromRows(rows)
}

func cellFromRows(rows [3][3]float64) Cell {
	norm := func(v [3]float64) float64 {
		return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	}
	dot := func(u, v [3]float64) float64 {
		return u[0]*v[0] + u[1]*v[1] + u[2]*v[2]
	}
	a := norm(rows[0])
	b := norm(rows[1])
	cc := norm(rows[2])

	acos := func(x float64) float64 {
		if x > 1 {
			x = 1
		}
		if x < -1 {
			x = -1
		}
		return math.Acos(x) / degToRad
	}

	alpha := acos(dot(rows[1], rows[2]) / (b * cc))
	beta := acos(dot(rows[0], rows[2]) / (a * cc))
	gamma := acos(dot(rows[0], rows[1]) / (a * b))

	return Cell{A: a, B: b, C: cc, Alpha: alpha, Beta: beta, Gamma: gamma}
}

// FiniteAndNonzero reports whether v is finite and |v| >= 1e-8, the check
// the generator applies to every lattice scalar before anything else.
func FiniteAndNonzero(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && math.Abs(v) >= 1e-8
}

// ShortestInteratomicDistance returns the minimum Euclidean distance between
// any two atoms, accounting for periodic images in the 26 neighboring
// cells (sufficient for the minimum-image convention at typical unit cell
// sizes used by this engine).
func ShortestInteratomicDistance(c Cell, atoms []Atom) (float64, bool) {
	if len(atoms) < 2 {
		return 0, false
	}
	m := Matrix(c)
	min := math.Inf(1)
	for i := 0; i < len(atoms); i++ {
		for j := i + 1; j < len(atoms); j++ {
			for dx := -1; dx <= 1; dx++ {
				for dy := -1; dy <= 1; dy++ {
					for dz := -1; dz <= 1; dz++ {
						shift := [3]float64{float64(dx), float64(dy), float64(dz)}
						var cart [3]float64
						for k := 0; k < 3; k++ {
							cart[k] = shift[0]*m.At(0, k) + shift[1]*m.At(1, k) + shift[2]*m.At(2, k)
						}
						ddx := atoms[i].X - (atoms[j].X + cart[0])
						ddy := atoms[i].Y - (atoms[j].Y + cart[1])
						ddz := atoms[i].Z - (atoms[j].Z + cart[2])
						d := math.Sqrt(ddx*ddx + ddy*ddy + ddz*ddz)
						if d < min {
							min = d
						}
					}
				}
			}
		}
	}
	return min, true
}
