// Package template expands the %KEYWORD% placeholders optimizer plugins
// use in their input-file templates into the geometry of one candidate.
package template

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/lattice"
)

const bohrPerAngstrom = 1.8897259886

var keywordPattern = regexp.MustCompile(`%([A-Za-z0-9_]+)%`)

// Expand replaces every %KEYWORD% occurrence in tmpl with c's current
// geometry, using symbolForZ to render element symbols where a keyword
// calls for them. Unknown keywords are left untouched so a plugin-specific
// expander layered on top can still see them.
func Expand(tmpl string, c *candidate.Candidate, symbolForZ func(int) string) string {
	return keywordPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := strings.ToLower(strings.Trim(match, "%"))
		if v, ok := expandOne(key, c, symbolForZ); ok {
			return v
		}
		return match
	})
}

func expandOne(key string, c *candidate.Candidate, symbolForZ func(int) string) (string, bool) {
	cell := c.Cell
	switch key {
	case "a":
		return f(cell.A), true
	case "b":
		return f(cell.B), true
	case "c":
		return f(cell.C), true
	case "alphadeg", "alpha":
		return f(cell.Alpha), true
	case "betadeg", "beta":
		return f(cell.Beta), true
	case "gammadeg", "gamma":
		return f(cell.Gamma), true
	case "alpharad":
		return f(cell.Alpha * math.Pi / 180), true
	case "betarad":
		return f(cell.Beta * math.Pi / 180), true
	case "gammarad":
		return f(cell.Gamma * math.Pi / 180), true
	case "volume":
		return f(lattice.Volume(cell)), true
	case "gen":
		return strconv.Itoa(c.Generation), true
	case "id":
		return strconv.Itoa(c.IDNumber), true
	case "gxi":
		return c.Key().String(), true
	case "numatoms":
		return strconv.Itoa(len(c.Atoms)), true
	case "cellmatrixangstrom":
		return cellMatrix(cell, 1), true
	case "cellmatrixbohr":
		return cellMatrix(cell, bohrPerAngstrom), true
	case "cellvector1angstrom":
		return cellVector(cell, 0, 1), true
	case "cellvector2angstrom":
		return cellVector(cell, 1, 1), true
	case "cellvector3angstrom":
		return cellVector(cell, 2, 1), true
	case "cellvector1bohr":
		return cellVector(cell, 0, bohrPerAngstrom), true
	case "cellvector2bohr":
		return cellVector(cell, 1, bohrPerAngstrom), true
	case "cellvector3bohr":
		return cellVector(cell, 2, bohrPerAngstrom), true
	case "coordsfrac":
		return coordsFrac(c, symbolForZ, false), true
	case "coordsfracid":
		return coordsFrac(c, symbolForZ, true), true
	case "poscar":
		return poscar(c, symbolForZ), true
	}
	return "", false
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}

func cellMatrix(cell lattice.Cell, scale float64) string {
	m := lattice.Matrix(cell)
	var b strings.Builder
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			fmt.Fprintf(&b, "%14.8f", m.At(i, j)*scale)
			if j < 2 {
				b.WriteByte(' ')
			}
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// cellVector renders the idx'th (0-based) row of the cell matrix as a single
// line, scaled to the requested unit.
func cellVector(cell lattice.Cell, idx int, scale float64) string {
	m := lattice.Matrix(cell)
	return fmt.Sprintf("%14.8f %14.8f %14.8f", m.At(idx, 0)*scale, m.At(idx, 1)*scale, m.At(idx, 2)*scale)
}

func coordsFrac(c *candidate.Candidate, symbolForZ func(int) string, withID bool) string {
	var b strings.Builder
	for i, a := range c.Atoms {
		frac := lattice.CartToFrac(c.Cell, [3]float64{a.X, a.Y, a.Z})
		sym := symbolForZ(a.AtomicNumber)
		if withID {
			fmt.Fprintf(&b, "%s%d %14.8f %14.8f %14.8f\n", sym, i+1, frac[0], frac[1], frac[2])
		} else {
			fmt.Fprintf(&b, "%s %14.8f %14.8f %14.8f\n", sym, frac[0], frac[1], frac[2])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// poscar renders the candidate in VASP's POSCAR format, grouping atoms by
// species in ascending atomic-number order (the order the composition map
// iterates in, per candidate.Composition.Sorted).
func poscar(c *candidate.Candidate, symbolForZ func(int) string) string {
	bySpecies := map[int][]lattice.Atom{}
	var species []int
	for _, a := range c.Atoms {
		if _, ok := bySpecies[a.AtomicNumber]; !ok {
			species = append(species, a.AtomicNumber)
		}
		bySpecies[a.AtomicNumber] = append(bySpecies[a.AtomicNumber], a)
	}
	for i := 1; i < len(species); i++ {
		for j := i; j > 0 && species[j-1] > species[j]; j-- {
			species[j-1], species[j] = species[j], species[j-1]
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n1.0\n", c.Key().String())
	b.WriteString(cellMatrix(c.Cell, 1))
	b.WriteByte('\n')

	var symbols, counts []string
	for _, z := range species {
		symbols = append(symbols, symbolForZ(z))
		counts = append(counts, strconv.Itoa(len(bySpecies[z])))
	}
	b.WriteString(strings.Join(symbols, " "))
	b.WriteByte('\n')
	b.WriteString(strings.Join(counts, " "))
	b.WriteString("\nDirect\n")

	for _, z := range species {
		for _, a := range bySpecies[z] {
			frac := lattice.CartToFrac(c.Cell, [3]float64{a.X, a.Y, a.Z})
			fmt.Fprintf(&b, "%14.8f %14.8f %14.8f\n", frac[0], frac[1], frac[2])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
