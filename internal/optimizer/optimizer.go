// Package optimizer defines the Plugin contract the scheduler drives
// candidates through, plus the template-driven implementation shared by
// the VASP, GULP, PWscf, and CASTEP backends.
package optimizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/connpool"
	"github.com/xtalopt/engine/internal/enginerr"
	"github.com/xtalopt/engine/internal/template"
)

// JobState is what Poll reports about a remote job.
type JobState string

const (
	JobQueued    JobState = "Queued"
	JobRunning   JobState = "Running"
	JobFinished  JobState = "Finished"
	JobError     JobState = "Error"
	JobUnknown   JobState = "Unknown"
)

// Plugin is the contract every optimizer backend implements. The scheduler
// drives backends through these methods and branches on IDString in two
// places only: GULP jobs get no pool connection, and VASP jobs pass a
// data-key preflight before submission.
type Plugin interface {
	// IDString names the backend, e.g. "VASP".
	IDString() string

	// WriteInputFiles expands every configured template against c and
	// writes the results into localDir.
	WriteInputFiles(c *candidate.Candidate, localDir string) error

	// BuildAuxiliaryFiles writes backend-specific files that don't come
	// from a %KEYWORD% template (pseudopotential links, job scripts).
	BuildAuxiliaryFiles(c *candidate.Candidate, localDir string) error

	// StartJob launches the job on the remote host under remoteDir using
	// conn, returning a backend-specific job identifier (e.g. a PID or
	// queue id) the scheduler stores and passes back into Poll.
	StartJob(ctx context.Context, conn *connpool.Connection, remoteDir string) (jobID string, err error)

	// Poll checks a previously started job's state.
	Poll(ctx context.Context, conn *connpool.Connection, remoteDir, jobID string) (JobState, error)

	// Read parses the backend's output files in localDir and populates c's
	// Energy/Enthalpy/PV and, if the backend relaxes the cell, Cell/Atoms.
	// The scheduler copies nothing from the remote host into localDir
	// before calling it.
	Read(c *candidate.Candidate, localDir string) error

	// Steps reports the length of this backend's step list: the number of
	// times a candidate must pass through write/start/poll/read before it
	// is considered fully optimized. A single-stage backend reports 1.
	Steps() int

	// GetData/SetData expose backend-specific scalar configuration (e.g.
	// VASP's ENCUT) for the session config layer to surface.
	GetData(key string) (string, bool)
	SetData(key, value string)
}

// symbolTable maps atomic numbers to element symbols for the small set of
// elements crystal-structure searches commonly target. It is intentionally
// not exhaustive; unknown numbers render as "Xn".
var symbolTable = map[int]string{
	1: "H", 2: "He", 3: "Li", 4: "Be", 5: "B", 6: "C", 7: "N", 8: "O", 9: "F", 10: "Ne",
	11: "Na", 12: "Mg", 13: "Al", 14: "Si", 15: "P", 16: "S", 17: "Cl", 18: "Ar",
	19: "K", 20: "Ca", 26: "Fe", 29: "Cu", 30: "Zn", 47: "Ag", 79: "Au",
}

func symbolForZ(z int) string {
	if s, ok := symbolTable[z]; ok {
		return s
	}
	return fmt.Sprintf("X%d", z)
}

// TemplatePlugin implements the template-expansion and file-writing parts
// of Plugin that every backend shares; concrete backends (vasp, gulp,
// pwscf, castep) embed it and supply their own templates, commands, and
// output parsing.
type TemplatePlugin struct {
	id        string
	templates map[string]string // output filename -> %KEYWORD% template
	startCmd  string
	pollCmd   string
	steps     int
	data      map[string]string
}

// newTemplatePlugin builds a TemplatePlugin with a step list of the given
// length. steps < 1 is normalized to 1: every backend completes at least
// one write/start/poll/read pass.
func newTemplatePlugin(id string, templates map[string]string, startCmd, pollCmd string, steps int) *TemplatePlugin {
	if steps < 1 {
		steps = 1
	}
	return &TemplatePlugin{id: id, templates: templates, startCmd: startCmd, pollCmd: pollCmd, steps: steps, data: map[string]string{}}
}

func (p *TemplatePlugin) IDString() string { return p.id }

// Steps reports the configured step-list length.
func (p *TemplatePlugin) Steps() int { return p.steps }

func (p *TemplatePlugin) WriteInputFiles(c *candidate.Candidate, localDir string) error {
	if err := os.MkdirAll(localDir, 0755); err != nil {
		return enginerr.Wrap(enginerr.PluginFailure, err, "create local directory").WithOperation("WriteInputFiles").WithComponent(p.id)
	}
	for name, tmpl := range p.templates {
		content := template.Expand(tmpl, c, symbolForZ)
		path := filepath.Join(localDir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return enginerr.Wrapf(enginerr.PluginFailure, err, "write %s", name).WithOperation("WriteInputFiles").WithComponent(p.id)
		}
	}
	return nil
}

func (p *TemplatePlugin) BuildAuxiliaryFiles(c *candidate.Candidate, localDir string) error {
	return nil
}

func (p *TemplatePlugin) StartJob(ctx context.Context, conn *connpool.Connection, remoteDir string) (string, error) {
	session, err := conn.Client().NewSession()
	if err != nil {
		return "", enginerr.Wrap(enginerr.TransportFailure, err, "open ssh session").WithOperation("StartJob").WithComponent(p.id)
	}
	defer session.Close()

	cmd := fmt.Sprintf("cd %s && nohup %s >%s/job.out 2>%s/job.err & echo $!", remoteDir, p.startCmd, remoteDir, remoteDir)
	out, err := session.Output(cmd)
	if err != nil {
		return "", enginerr.Wrap(enginerr.TransportFailure, err, "start remote job").WithOperation("StartJob").WithComponent(p.id)
	}
	return strings.TrimSpace(string(out)), nil
}

func (p *TemplatePlugin) Poll(ctx context.Context, conn *connpool.Connection, remoteDir, jobID string) (JobState, error) {
	session, err := conn.Client().NewSession()
	if err != nil {
		return JobUnknown, enginerr.Wrap(enginerr.TransportFailure, err, "open ssh session").WithOperation("Poll").WithComponent(p.id)
	}
	defer session.Close()

	cmd := fmt.Sprintf("kill -0 %s 2>/dev/null && echo RUNNING || echo DONE", jobID)
	out, err := session.Output(cmd)
	if err != nil {
		return JobUnknown, enginerr.Wrap(enginerr.TransportFailure, err, "poll remote job").WithOperation("Poll").WithComponent(p.id)
	}
	if strings.Contains(string(out), "RUNNING") {
		return JobRunning, nil
	}
	return JobFinished, nil
}

func (p *TemplatePlugin) GetData(key string) (string, bool) {
	v, ok := p.data[key]
	return v, ok
}

func (p *TemplatePlugin) SetData(key, value string) {
	p.data[key] = value
}
