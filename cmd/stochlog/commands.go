package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cognicore/stochlog/pkg/stochlog"
	"github.com/cognicore/stochlog/pkg/stochlog/config"
	"github.com/cognicore/stochlog/pkg/stochlog/internalerr"
	"github.com/cognicore/stochlog/pkg/stochlog/parse"
	"github.com/cognicore/stochlog/pkg/stochlog/store"
	"github.com/cognicore/stochlog/pkg/stochlog/store/sqlite"
)

var (
	outPath    string
	treeDepth  int
	showTree   bool
	archiveDB  string
	runID      string
	maxAnswers int
)

var compileCmd = &cobra.Command{
	Use:   "compile [rule-globs...]",
	Short: "Compile rule files into a program listing",
	Long: `Compiles .ppr rule files (and appends .wam listings) into one program
and writes its listing, which later runs can load in place of the rules.
Without arguments the rules of the configuration are compiled.`,
	RunE: runCompile,
}

var proveCmd = &cobra.Command{
	Use:   "prove [query]",
	Short: "Prove one query and print its ranked solutions",
	Example: `  stochlog prove --rules family.ppr --facts family.graph "grandparent(pam,X)"
  stochlog prove -c run.yaml --tree "coworker(alice,Y)"`,
	Args: cobra.ExactArgs(1),
	RunE: runProve,
}

var answerCmd = &cobra.Command{
	Use:   "answer [queries-file]",
	Short: "Prove a file of queries in parallel",
	Long: `Reads one query per line (example files work too; labels are ignored)
and writes a "# proved" header followed by the ranked solutions of each.
Files ending in .zst are read and written zstd-compressed.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnswer,
}

var groundCmd = &cobra.Command{
	Use:   "ground [examples-file]",
	Short: "Ground labelled examples into training proof graphs",
	Long: `Reads one example per line, "query<TAB>+solution<TAB>-solution...",
proves each query and writes the explored proof graph with the ids of its
positive and negative solutions. Examples reaching no labelled solution are
skipped. With --archive every line is also saved to a sqlite database.`,
	Args: cobra.ExactArgs(1),
	RunE: runGround,
}

func init() {
	compileCmd.Flags().StringVarP(&outPath, "out", "o", "-", "Output file (- for stdout)")

	proveCmd.Flags().BoolVar(&showTree, "tree", false, "Print the explored proof graph")
	proveCmd.Flags().IntVar(&treeDepth, "depth", 10, "Depth of the printed proof graph")
	proveCmd.Flags().IntVarP(&maxAnswers, "top", "k", 0, "Print at most this many solutions (0 for all)")

	answerCmd.Flags().StringVarP(&outPath, "out", "o", "-", "Output file (- for stdout, .zst to compress)")

	groundCmd.Flags().StringVarP(&outPath, "out", "o", "-", "Output file (- for stdout, .zst to compress)")
	groundCmd.Flags().StringVar(&archiveDB, "archive", "", "sqlite database receiving the grounded lines")
	groundCmd.Flags().StringVar(&runID, "run-id", "", "Archive run id (default: a new ULID)")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func openEngine(ctx context.Context, extra stochlog.Options) (*stochlog.Engine, error) {
	cfg, baseDir, err := loadConfig()
	if err != nil {
		return nil, err
	}
	extra.Logger = logger
	return stochlog.Open(ctx, cfg, baseDir, extra)
}

func runCompile(cmd *cobra.Command, args []string) error {
	var paths []string
	if len(args) == 0 {
		cfg, baseDir, err := loadConfig()
		if err != nil {
			return err
		}
		comp, err := (&config.Loader{Config: cfg, BaseDir: baseDir}).Load(cmd.Context())
		if err != nil {
			return err
		}
		comp.Close()
		paths = comp.RuleFiles
	} else {
		for _, pattern := range args {
			matches, err := doublestar.FilepathGlob(pattern)
			if err != nil {
				return fmt.Errorf("%w: pattern %q: %v", internalerr.ErrInvalidConfig, pattern, err)
			}
			if len(matches) == 0 {
				return fmt.Errorf("%w: %s", internalerr.ErrNotFound, pattern)
			}
			sort.Strings(matches)
			paths = append(paths, matches...)
		}
	}

	prog, err := config.CompileFiles(paths)
	if err != nil {
		return err
	}
	out, err := createOutput(cmd.OutOrStdout(), outPath)
	if err != nil {
		return err
	}
	if err := prog.Save(out); err != nil {
		out.Close()
		return err
	}
	logger.Info("compiled", zap.Int("files", len(paths)), zap.Int("instructions", prog.Size()))
	return out.Close()
}

func runProve(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	engine, err := openEngine(ctx, stochlog.Options{})
	if err != nil {
		return err
	}
	defer engine.Close()

	w := cmd.OutOrStdout()
	if showTree {
		tree, sols, err := engine.Explain(args[0], treeDepth)
		if err != nil {
			return err
		}
		fmt.Fprint(w, tree)
		printSolutions(w, sols)
		return nil
	}
	sols, err := engine.Prove(args[0])
	if err != nil {
		return err
	}
	printSolutions(w, sols)
	return nil
}

func runAnswer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	in, err := openInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}
	queries, err := parse.ReadQueries(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	engine, err := openEngine(ctx, stochlog.Options{})
	if err != nil {
		return err
	}
	defer engine.Close()

	out, err := createOutput(cmd.OutOrStdout(), outPath)
	if err != nil {
		return err
	}
	if _, err := engine.Answer(ctx, queries, out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func runGround(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	in, err := openInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}
	examples, err := parse.ReadExamples(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	extra := stochlog.Options{RunID: runID}
	if archiveDB != "" {
		var st store.Store
		st, err = sqlite.OpenSQLite(ctx, archiveDB)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		extra.Archive = st
		extra.Closers = []io.Closer{st}
	}
	engine, err := openEngine(ctx, extra)
	if err != nil {
		if extra.Archive != nil {
			extra.Archive.Close()
		}
		return err
	}
	defer engine.Close()

	out, err := createOutput(cmd.OutOrStdout(), outPath)
	if err != nil {
		return err
	}
	stats, err := engine.Ground(ctx, examples, out)
	if err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if stats.Grounded == 0 && stats.Examples > 0 {
		logger.Warn("no example was grounded", zap.String("run_id", stats.RunID))
	}
	return nil
}

func printSolutions(w io.Writer, sols []stochlog.Solution) {
	for i, s := range sols {
		if maxAnswers > 0 && i >= maxAnswers {
			break
		}
		fmt.Fprintf(w, "%d\t%.6g\t%s\n", i+1, s.Mass, s.Query)
	}
}
