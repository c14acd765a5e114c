package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/xtalopt/engine/internal/config"
	"github.com/xtalopt/engine/internal/engine"
	"github.com/xtalopt/engine/internal/logging"
	"github.com/xtalopt/engine/internal/optimizer"
	"github.com/xtalopt/engine/internal/prompter"
)

func main() {
	root := &cobra.Command{
		Use:   "xtalopt",
		Short: "Evolutionary crystal-structure search engine",
	}

	var sessionPath string
	root.PersistentFlags().StringVar(&sessionPath, "session", "session.yaml", "path to session.yaml")

	var serverAddr string
	root.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8080", "running engine's HTTP address")

	root.AddCommand(
		newStartCmd(&sessionPath),
		newResumeCmd(&sessionPath),
		newStatusCmd(&serverAddr),
		newHaltCmd(&serverAddr),
		newResetDuplicatesCmd(&serverAddr),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newStartCmd(sessionPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start a new search session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(*sessionPath)
		},
	}
}

func newResumeCmd(sessionPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a search session from its saved state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(*sessionPath)
		},
	}
}

func newStatusCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the running session's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(*addr + "/api/v1/session")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return prettyPrint(resp.Body)
		},
	}
}

func newHaltCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "halt",
		Short: "Request a cooperative halt of the running session",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Post(*addr+"/api/v1/halt", "application/json", bytes.NewReader(nil))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return prettyPrint(resp.Body)
		},
	}
}

func newResetDuplicatesCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-duplicates",
		Short: "Recompute space groups and re-run the duplicate scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Post(*addr+"/api/v1/reset-duplicates", "application/json", bytes.NewReader(nil))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return prettyPrint(resp.Body)
		},
	}
}

func prettyPrint(r io.Reader) error {
	var v interface{}
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runSession(sessionPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load process configuration: %w", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	sessionCfg, err := config.LoadSession(sessionPath)
	if err != nil {
		return fmt.Errorf("load session configuration: %w", err)
	}

	plugin, err := selectPlugin(sessionCfg.OptimizerPlugin, sessionCfg.OptSteps)
	if err != nil {
		return err
	}

	ask := prompter.NewCLI(os.Stdin, os.Stderr, int(os.Stdin.Fd()))

	eng, err := engine.New(cfg, sessionCfg, logger, plugin, ask)
	if err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}

	return eng.Run(context.Background())
}

func selectPlugin(name string, steps int) (optimizer.Plugin, error) {
	switch name {
	case "VASP":
		return optimizer.NewVASP(defaultIncar, defaultKpoints, steps), nil
	case "GULP":
		return optimizer.NewGULP(defaultGulpInput), nil
	case "PWscf":
		return optimizer.NewPWscf(defaultPWInput, steps), nil
	case "CASTEP":
		return optimizer.NewCASTEP(defaultCastepCell, defaultCastepParam, steps), nil
	default:
		return nil, fmt.Errorf("unknown optimizer_plugin %q", name)
	}
}

const (
	defaultIncar = "SYSTEM = %GXI%\nISIF = 3\nENCUT = 400\n"

	defaultKpoints = "Automatic mesh\n0\nGamma\n2 2 2\n0 0 0\n"

	defaultGulpInput = "opti conp\ncell\n%A% %B% %C% %ALPHADEG% %BETADEG% %GAMMADEG%\nfractional\n%COORDSFRAC%\n"

	defaultPWInput = "&CONTROL\n calculation='vc-relax'\n/\n&SYSTEM\n ibrav=0, nat=%NUMATOMS%\n/\nCELL_PARAMETERS angstrom\n%CELLMATRIXANGSTROM%\nATOMIC_POSITIONS crystal\n%COORDSFRAC%\n"

	defaultCastepCell = "%BLOCK LATTICE_CART\n%CELLVECTOR1ANGSTROM%\n%CELLVECTOR2ANGSTROM%\n%CELLVECTOR3ANGSTROM%\n%ENDBLOCK LATTICE_CART\n\nPOSITIONS_FRAC\n%COORDSFRAC%\n"

	defaultCastepParam = "task: GeometryOptimization\nxc_functional: PBE\n"
)
