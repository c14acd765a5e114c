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

// CASTEP drives relaxations via castep, reading the final enthalpy
// directly from the .castep output (CASTEP reports enthalpy natively when
// running a variable-cell optimization, unlike the other three backends).
type CASTEP struct {
	*TemplatePlugin
}

// NewCASTEP creates a CASTEP plugin from .cell and .param %KEYWORD%
// templates. steps is the length of the relaxation's step list.
func NewCASTEP(cell, param string, steps int) *CASTEP {
	templates := map[string]string{"job.cell": cell, "job.param": param}
	return &CASTEP{TemplatePlugin: newTemplatePlugin("CASTEP", templates, "castep job", "", steps)}
}

func (p *CASTEP) Read(c *candidate.Candidate, localDir string) error {
	f, err := os.Open(filepath.Join(localDir, "job.castep"))
	if err != nil {
		return enginerr.Wrap(enginerr.PluginFailure, err, "open .castep output").WithOperation("Read").WithComponent("CASTEP")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	found := false
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "Final Enthalpy") {
			continue
		}
		fields := strings.Fields(line)
		for i, fld := range fields {
			if fld == "=" && i+1 < len(fields) {
				e, perr := strconv.ParseFloat(fields[i+1], 64)
				if perr == nil {
					c.Lock()
					c.Enthalpy = e
					c.Energy = e - c.PV
					c.InvalidateFingerprint()
					c.Unlock()
					found = true
				}
			}
		}
	}
	if !found {
		return enginerr.New(enginerr.PluginFailure, ".castep output has no Final Enthalpy line").WithOperation("Read").WithComponent("CASTEP")
	}
	return nil
}
