package optimizer

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/enginerr"
)

// VASP drives relaxations via a POSCAR/INCAR/KPOINTS/POTCAR input set and
// reads the final energy back out of a simplified OUTCAR-style summary
// line the caller's vasp wrapper script is expected to emit:
// "FREE ENERGY  TOTEN  = <energy> eV".
type VASP struct {
	*TemplatePlugin
}

// NewVASP creates a VASP plugin. incar and kpoints are %KEYWORD%
// templates; POSCAR is always generated from the candidate's geometry.
// steps is the length of the relaxation's step list — VASP's ISIF=3
// relaxations are commonly resubmitted against their own relaxed output a
// few times before the cell and basis set are mutually converged.
func NewVASP(incar, kpoints string, steps int) *VASP {
	templates := map[string]string{
		"POSCAR":  "%POSCAR%",
		"INCAR":   incar,
		"KPOINTS": kpoints,
	}
	return &VASP{TemplatePlugin: newTemplatePlugin("VASP", templates, "vasp_std", "", steps)}
}

func (v *VASP) Read(c *candidate.Candidate, localDir string) error {
	f, err := os.Open(filepath.Join(localDir, "OUTCAR"))
	if err != nil {
		return enginerr.Wrap(enginerr.PluginFailure, err, "open OUTCAR").WithOperation("Read").WithComponent("VASP")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	found := false
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "FREE ENERGY") {
			continue
		}
		fields := strings.Fields(line)
		for i, fld := range fields {
			if fld == "=" && i+1 < len(fields) {
				e, perr := strconv.ParseFloat(fields[i+1], 64)
				if perr == nil {
					c.Lock()
					c.Energy = e
					c.Enthalpy = e + c.PV
					c.InvalidateFingerprint()
					c.Unlock()
					found = true
				}
			}
		}
	}
	if !found {
		return enginerr.New(enginerr.PluginFailure, "OUTCAR has no FREE ENERGY line").WithOperation("Read").WithComponent("VASP")
	}
	return nil
}
