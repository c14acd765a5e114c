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

// PWscf drives relaxations via pw.x, reading the final total energy in Ry
// from the output and converting to eV.
type PWscf struct {
	*TemplatePlugin
}

const ryToEV = 13.605693009

// NewPWscf creates a PWscf plugin from a single %KEYWORD% input template.
// steps is the length of the relaxation's step list.
func NewPWscf(pwIn string, steps int) *PWscf {
	templates := map[string]string{"pw.in": pwIn}
	return &PWscf{TemplatePlugin: newTemplatePlugin("PWscf", templates, "pw.x -in pw.in", "", steps)}
}

func (p *PWscf) Read(c *candidate.Candidate, localDir string) error {
	f, err := os.Open(filepath.Join(localDir, "job.out"))
	if err != nil {
		return enginerr.Wrap(enginerr.PluginFailure, err, "open pwscf output").WithOperation("Read").WithComponent("PWscf")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	found := false
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "!") || !strings.Contains(line, "total energy") {
			continue
		}
		fields := strings.Fields(line)
		for i, fld := range fields {
			if fld == "=" && i+1 < len(fields) {
				ry, perr := strconv.ParseFloat(fields[i+1], 64)
				if perr == nil {
					e := ry * ryToEV
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
		return enginerr.New(enginerr.PluginFailure, "pwscf output has no total energy line").WithOperation("Read").WithComponent("PWscf")
	}
	return nil
}
