package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"agentfeedback/cmd/feedback/ui"
	"agentfeedback/internal/config"
	"agentfeedback/internal/logging"
	"agentfeedback/internal/security"
	"agentfeedback/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	cfgFile    string
	storeDir   string
	verbose    bool
	jsonOutput bool

	// Set up by PersistentPreRunE
	cfg     *config.Config
	logs    *logging.Logger
	logger  *zap.Logger
	fbStore *store.Store
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "feedback",
	Short: "File-backed feedback tracker for agents and their operators",
	Long: `feedback records issues, improvement ideas, questions and compliance
notes as one JSON document per record, grouped by type under a store directory.

Records can be listed, filtered, commented on, exported, imported, and
cleaned up once they age past the retention window.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

// closeLogs flushes and closes the log sinks. It runs as a cobra finalizer,
// so failing commands close them too.
func closeLogs() {
	if logs != nil {
		_ = logs.Close()
		logs = nil
	}
}

// setup loads configuration and opens the store for the command being run.
func setup(cmd *cobra.Command) error {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	if storeDir != "" {
		c.Store.Dir = storeDir
	}
	if verbose {
		c.Logging.Level = "debug"
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	l, err := logging.New(c.Logging, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logs = l
	logger = l.Get(logging.CategoryCLI)

	var guard security.Guard = security.AllowAll{}
	if len(c.Security.AllowedAreas) > 0 {
		g, err := security.NewAreaGuard(c.Security.AllowedAreas, l.Get(logging.CategorySecurity))
		if err != nil {
			return err
		}
		guard = g
	}

	s, err := store.New(c.ResolvedDir(),
		store.WithLogger(l.Get(logging.CategoryStore)),
		store.WithPathGuard(guard),
		store.WithLockTimeout(c.GetLockTimeout()),
		store.WithLocationCacheTTL(c.GetCacheTTL()),
	)
	if err != nil {
		return fmt.Errorf("failed to open feedback store: %w", err)
	}

	cfg = c
	fbStore = s
	logger.Debug("store opened", zap.String("root", s.Root()), zap.String("config", path))
	return nil
}

func styles() ui.Styles {
	return ui.DefaultStyles()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default: ~/Agentic/config/feedback.yaml)")
	rootCmd.PersistentFlags().StringVarP(&storeDir, "dir", "d", "", "Store directory (overrides config and FEEDBACK_DIR)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON instead of formatted output")

	registerRecordCommands()
	registerQueryCommands()
	registerTransferCommands()
	registerWatchCommand()

	cobra.OnFinalize(closeLogs)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
