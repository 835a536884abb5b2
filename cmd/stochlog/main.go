// Command stochlog compiles logic programs, proves queries against them and
// grounds labelled examples into proof graphs for training.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cognicore/stochlog/pkg/stochlog/config"
)

var (
	configPath  string
	verbose     bool
	metricsAddr string
	extraRules  []string
	extraFacts  []string

	logger        *zap.Logger
	metricsServer *http.Server
)

var rootCmd = &cobra.Command{
	Use:   "stochlog",
	Short: "Stochastic logic-program prover",
	Long: `stochlog compiles Horn-clause rules into WAM byte-code, explores the
proofs of a query as a graph of machine states and ranks the solutions by
the probability mass a random walk over that graph assigns them.

Rules, fact sources and the prover are described by a YAML file (--config);
--rules and --facts add globs on top of it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if metricsAddr != "" {
			startMetrics(metricsAddr)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = metricsServer.Shutdown(ctx)
			cancel()
			metricsServer = nil
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	pf.StringSliceVar(&extraRules, "rules", nil, "Additional rule file globs (.ppr or .wam)")
	pf.StringSliceVar(&extraFacts, "facts", nil, "Additional fact source globs (.facts, .graph, .mg)")

	rootCmd.AddCommand(compileCmd, proveCmd, answerCmd, groundCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads --config, or the defaults, and appends the --rules and
// --facts globs. The returned directory anchors the configuration's
// relative paths.
func loadConfig() (*config.Config, string, error) {
	cfg := config.Default()
	baseDir := ""
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, "", err
		}
		baseDir = filepath.Dir(configPath)
	}
	for _, g := range extraRules {
		cfg.Program.Rules = append(cfg.Program.Rules, absFromWD(g, baseDir))
	}
	for _, g := range extraFacts {
		cfg.Program.Facts = append(cfg.Program.Facts, absFromWD(g, baseDir))
	}
	return cfg, baseDir, nil
}

// absFromWD keeps command-line globs relative to the working directory when
// the configuration lives elsewhere.
func absFromWD(pattern, baseDir string) string {
	if baseDir == "" || filepath.IsAbs(pattern) {
		return pattern
	}
	abs, err := filepath.Abs(pattern)
	if err != nil {
		return pattern
	}
	return abs
}

func startMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	srv := metricsServer
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
}
