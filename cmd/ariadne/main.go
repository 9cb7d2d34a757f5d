// Package main implements the ariadne CLI.
//
// ariadne keeps interactive agent sessions resumable across context
// loss: an ambient working-state document, immutable checkpoint files,
// and an optional knowledge graph, fed by direct commands and by
// hidden hook handlers the host calls on lifecycle events.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"ariadne/internal/ambient"
	"ariadne/internal/checkpoint"
	"ariadne/internal/config"
	"ariadne/internal/dispatch"
	"ariadne/internal/journal"
	"ariadne/internal/knowledge"
	"ariadne/internal/logging"
	"ariadne/internal/resume"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Global flags and state shared by all commands
var (
	verbose     bool
	workspace   string
	logger      *zap.Logger
	cfg         *config.Config
	initialized bool // the .ariadne directory exists
)

// rootCmd is the base command for the ariadne CLI
var rootCmd = &cobra.Command{
	Use:   "ariadne",
	Short: "Session state that survives context loss",
	Long: `ariadne persists the working state of an interactive agent session
across context exhaustion, compaction, and crashes.

Three tiers hold the thread:
  1. Ambient state   - a "## Working State" section in .ariadne/context.md
  2. Checkpoints     - immutable markdown records in .ariadne/checkpoints/
  3. Knowledge graph - optional external server for cross-session memory

'ariadne checkpoint' captures a rich snapshot before risky or long work,
'ariadne save' patches the ambient state from git when there is no time
for more, and 'ariadne resume' reassembles the picture afterwards.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// setup resolves the workspace, loads configuration, and builds the
// logger. A failure here is a setup problem, the one class of error
// allowed to be fatal.
func setup() error {
	ws := workspace
	if ws == "" {
		ws, _ = os.Getwd()
	}
	abs, err := filepath.Abs(ws)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace: %w", err)
	}
	workspace = abs

	cfg, err = config.Load(workspace)
	if err != nil {
		return err
	}

	_, statErr := os.Stat(filepath.Join(workspace, config.DirName))
	initialized = statErr == nil

	// File logging only after init has created the state directory;
	// until then ariadne must not scaffold implicitly.
	logDir := ""
	if initialized {
		logDir = cfg.LogDir(workspace)
	}
	logger, err = logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Dir:     logDir,
		Verbose: verbose,
	})
	if err != nil {
		return err
	}
	return nil
}

// app bundles the wired stores so command bodies stay declarative.
// Call Close when done; it shuts down the graph subprocess and the
// journal handle.
type app struct {
	ambient     *ambient.Store
	checkpoints *checkpoint.Store
	graph       *knowledge.Client
	journal     *journal.Journal
	dispatcher  *dispatch.Dispatcher
	coordinator *resume.Coordinator
}

// newApp wires the stores for the resolved workspace. The journal and
// the graph degrade to disabled rather than failing the command.
func newApp() *app {
	amb := ambient.NewStore(cfg.AmbientPath(workspace), logger)
	cps := checkpoint.NewStore(cfg.CheckpointDir(workspace), logger)

	graphCommand := ""
	if cfg.Knowledge.Enabled {
		graphCommand = cfg.Knowledge.Command
	}
	graph := knowledge.NewClient(graphCommand, logger)

	var jnl *journal.Journal
	if cfg.Journal.Enabled && initialized {
		j, err := journal.Open(cfg.JournalPath(workspace))
		if err != nil {
			logger.Warn("Dispatch journal unavailable", zap.Error(err))
		} else {
			jnl = j
		}
	}

	return &app{
		ambient:     amb,
		checkpoints: cps,
		graph:       graph,
		journal:     jnl,
		dispatcher: dispatch.New(dispatch.Options{
			Ambient:           amb,
			Checkpoints:       cps,
			Graph:             graph,
			Journal:           jnl,
			Timeout:           cfg.DispatchTimeout(),
			AdvisoryThreshold: cfg.Dispatch.AdvisoryThreshold,
			Logger:            logger,
		}),
		coordinator: resume.New(resume.Options{
			Ambient:       amb,
			Checkpoints:   cps,
			Graph:         graph,
			Workspace:     workspace,
			SourceTimeout: cfg.SourceTimeout(),
			Logger:        logger,
		}),
	}
}

func (a *app) Close() {
	if a.graph != nil {
		_ = a.graph.Close()
	}
	if a.journal != nil {
		_ = a.journal.Close()
	}
}

// cliSessionID labels journal rows written by direct commands. Hook
// handlers use the host-provided session ID instead.
func cliSessionID() string {
	return os.Getenv("ARIADNE_SESSION_ID")
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")

	// Add commands to root
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(hookCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
