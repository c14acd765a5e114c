package optimizer

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xtalopt/engine/internal/candidate"
	"github.com/xtalopt/engine/internal/connpool"
	"github.com/xtalopt/engine/internal/enginerr"
)

// GULP runs locally rather than over the remote-exec connection pool: it
// is fast enough not to need remote queuing. StartJob and Poll ignore the
// supplied connection entirely.
type GULP struct {
	*TemplatePlugin
}

// NewGULP creates a GULP plugin from a single %KEYWORD% input template.
// GULP's step list is always length 1: StartJob blocks until the local gulp
// process exits, so there is no notion of resubmitting against its own
// output the way the remote backends do.
func NewGULP(gin string) *GULP {
	templates := map[string]string{"gulp.gin": gin}
	return &GULP{TemplatePlugin: newTemplatePlugin("GULP", templates, "", "", 1)}
}

func (g *GULP) StartJob(ctx context.Context, conn *connpool.Connection, remoteDir string) (string, error) {
	cmd := exec.CommandContext(ctx, "gulp", "gulp.gin")
	cmd.Dir = remoteDir
	out, err := os.Create(filepath.Join(remoteDir, "gulp.got"))
	if err != nil {
		return "", enginerr.Wrap(enginerr.PluginFailure, err, "create gulp.got").WithOperation("StartJob").WithComponent("GULP")
	}
	defer out.Close()
	cmd.Stdout = out

	if err := cmd.Run(); err != nil {
		return "", enginerr.Wrap(enginerr.PluginFailure, err, "run gulp").WithOperation("StartJob").WithComponent("GULP")
	}
	return "local", nil
}

func (g *GULP) Poll(ctx context.Context, conn *connpool.Connection, remoteDir, jobID string) (JobState, error) {
	// StartJob runs synchronously, so by the time Poll is called the job
	// has already finished.
	return JobFinished, nil
}

func (g *GULP) Read(c *candidate.Candidate, localDir string) error {
	f, err := os.Open(filepath.Join(localDir, "gulp.got"))
	if err != nil {
		return enginerr.Wrap(enginerr.PluginFailure, err, "open gulp.got").WithOperation("Read").WithComponent("GULP")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	found := false
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "Total lattice energy") || !strings.Contains(line, "eV") {
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
		return enginerr.New(enginerr.PluginFailure, "gulp.got has no lattice energy line").WithOperation("Read").WithComponent("GULP")
	}
	return nil
}
