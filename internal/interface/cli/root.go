// Package cli wires the dirorch command line: flag parsing, logical
// workflow name resolution, and dispatch into the application layer.
// Structured the way the teacher's internal/interface/cli/root.go and
// cmd/deespec/main.go split responsibilities: a cobra root owning flags
// and wiring, a thin main that just calls Execute and maps errors to an
// exit code.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/kobuchi/dirorch/internal/application/orchestrator"
	"github.com/kobuchi/dirorch/internal/application/phase"
	"github.com/kobuchi/dirorch/internal/infra/config"
	"github.com/kobuchi/dirorch/internal/infra/envbuild"
	"github.com/kobuchi/dirorch/internal/infra/hook"
	"github.com/kobuchi/dirorch/internal/infra/log"
	"github.com/kobuchi/dirorch/internal/infra/runtimestate"
	"github.com/kobuchi/dirorch/internal/infra/store"
)

const defaultStateFile = ".dirorch_runtime.json"

type options struct {
	root      string
	retries   int
	stateFile string
	logLevel  string
}

// NewRoot builds the dirorch cobra command.
func NewRoot() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "dirorch <workflow>",
		Short: "Run a directory-backed workflow to fixpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.root, "root", "", "workflow root directory (default: current working directory)")
	flags.IntVar(&opts.retries, "retries", -1, "override the configuration's retries (default: use configuration value)")
	flags.StringVar(&opts.stateFile, "state-file", defaultStateFile, "runtime state filename, resolved under root")
	flags.StringVar(&opts.logLevel, "log-level", "INFO", "log level: DEBUG, INFO, WARNING, or ERROR")

	return cmd
}

func run(workflowArg string, opts *options) error {
	level, err := log.ParseLevel(opts.logLevel)
	if err != nil {
		return fmt.Errorf("cli: %w", err)
	}
	logger := log.WithLevel(log.GetLogger(), level)
	log.SetLogger(logger)

	root := opts.root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("cli: determine working directory: %w", err)
		}
		root = wd
	}

	configPath, err := resolveWorkflowPath(workflowArg)
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()

	cfg, err := config.Load(fs, configPath)
	if err != nil {
		return fmt.Errorf("cli: load workflow %s: %w", configPath, err)
	}
	if opts.retries >= 0 {
		cfg.Retries = opts.retries
	}

	st := store.New(fs, root)
	if err := st.EnsureDirs(cfg.Phases); err != nil {
		return err
	}

	baseEnv, err := envbuild.Base(cfg, root)
	if err != nil {
		return err
	}

	hooks := hook.New(root, cfg.Retries, logger)
	phaseEngine := phase.New(st, hooks, baseEnv, logger)
	statePath := filepath.Join(root, opts.stateFile)
	stateStore := runtimestate.New(fs, statePath, logger)

	engine := orchestrator.New(cfg, phaseEngine, hooks, stateStore, baseEnv, logger)
	return engine.Run()
}

// resolveWorkflowPath implements spec.md §6's logical workflow name
// resolution: if arg names an existing file, use it verbatim; otherwise
// resolve it as <config-home>/dirorch/workflows/<name>.yml.
func resolveWorkflowPath(arg string) (string, error) {
	if exists, err := afero.Exists(afero.NewOsFs(), arg); err == nil && exists {
		return arg, nil
	}

	configHome := os.Getenv("XDG_CONFIG_DIR")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cli: resolve logical workflow name %q: %w", arg, err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "dirorch", "workflows", arg+".yml"), nil
}
