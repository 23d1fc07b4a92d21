package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/haltmark/cgprof/internal/batch"
	"github.com/haltmark/cgprof/internal/callgrind"
	"github.com/haltmark/cgprof/internal/callgrind/digest"
	"github.com/haltmark/cgprof/internal/config"
	"github.com/haltmark/cgprof/internal/debug"
	"github.com/haltmark/cgprof/internal/discovery"
	"github.com/haltmark/cgprof/internal/version"
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", c.String("config"), err)
	}
	if format := c.String("format"); format != "" {
		cfg.CostFormat = format
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	app := &cli.App{
		Name:    "cgprof",
		Usage:   "preprocess and query Callgrind profiler traces",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				Value:   ".cgprof.kdl",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Cost format override: percent, msec, or usec",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				os.Setenv("CGPROF_DEBUG", "1")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "preprocess",
				Usage:     "Parse a Callgrind trace into a binary index",
				ArgsUsage: "<input.callgrind> <output.idx>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "skip-if-unchanged",
						Usage: "Skip preprocessing when the output index already matches the input's fingerprint",
					},
				},
				Action: preprocessCommand,
			},
			{
				Name:      "batch",
				Usage:     "Preprocess every trace matching a glob pattern under a directory",
				ArgsUsage: "<root>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "pattern",
						Usage: "Glob pattern relative to root",
						Value: discovery.DefaultPattern,
					},
					&cli.StringFlag{
						Name:  "out-dir",
						Usage: "Directory to write .idx files into (defaults to alongside each trace)",
					},
					&cli.IntFlag{
						Name:  "parallelism",
						Usage: "Maximum concurrent preprocessing jobs (0 = unbounded)",
						Value: 4,
					},
				},
				Action: batchCommand,
			},
			{
				Name:      "query",
				Usage:     "Inspect a binary index",
				ArgsUsage: "<index.idx> [functionNr]",
				Action:    queryCommand,
			},
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(c *cli.Context) error {
					fmt.Println(version.FullInfo())
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "cgprof: %v\n", err)
		os.Exit(1)
	}
}

func preprocessCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.Exit("usage: cgprof preprocess <input.callgrind> <output.idx>", 1)
	}
	in, out := c.Args().Get(0), c.Args().Get(1)

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if c.Bool("skip-if-unchanged") {
		stale, err := isStale(in, out)
		if err != nil {
			return err
		}
		if !stale {
			debug.Log("cli", "skipping %s, index is up to date", in)
			return nil
		}
	}

	if cfg.FastPathBinary != "" {
		if runFastPath(cfg.FastPathBinary, in, out, proxyFunctionsCSV(cfg.ProxyFunctions)) {
			debug.Log("cli", "preprocessed %s via fast path %s", in, cfg.FastPathBinary)
			if c.Bool("skip-if-unchanged") {
				if err := recordFingerprint(in, out); err != nil {
					return err
				}
			}
			fmt.Printf("wrote %s\n", out)
			return nil
		}
		debug.Log("cli", "fast path %s unavailable or failed for %s, falling back to in-process preprocessor", cfg.FastPathBinary, in)
	}

	p := callgrind.NewPreprocessor(cfg.ProxyFunctions)
	if err := p.Run(in, out); err != nil {
		return fmt.Errorf("preprocessing %s: %w", in, err)
	}
	if c.Bool("skip-if-unchanged") {
		if err := recordFingerprint(in, out); err != nil {
			return err
		}
	}
	fmt.Printf("wrote %s\n", out)
	return nil
}

func batchCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: cgprof batch <root>", 1)
	}
	root := c.Args().Get(0)

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	traces, err := discovery.Find(root, c.String("pattern"))
	if err != nil {
		return err
	}
	if len(traces) == 0 {
		fmt.Println("no traces found")
		return nil
	}

	jobs := make([]batch.Job, len(traces))
	for i, trace := range traces {
		jobs[i] = batch.Job{InputPath: trace, OutputPath: indexPathFor(trace, c.String("out-dir"))}
	}

	results, err := batch.Run(context.Background(), jobs, cfg.ProxyFunctions, c.Int("parallelism"))
	if err != nil {
		return err
	}

	failures := 0
	for _, r := range results {
		displayPath := discovery.ToRelative(r.Job.InputPath, root)
		if r.Err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "%s: %v\n", displayPath, r.Err)
			continue
		}
		fmt.Printf("%s -> %s\n", displayPath, discovery.ToRelative(r.Job.OutputPath, root))
	}
	if failures > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d traces failed", failures, len(results)), 1)
	}
	return nil
}

func queryCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: cgprof query <index.idx> [functionNr]", 1)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	r, err := callgrind.Open(c.Args().Get(0), callgrind.CostFormat(cfg.CostFormat))
	if err != nil {
		return err
	}
	defer r.Close()

	if c.NArg() < 2 {
		fmt.Printf("functions: %d\n", r.FunctionCount())
		summary, _ := r.GetHeader("summary")
		fmt.Printf("summary: %s\n", summary)
		return nil
	}

	var nr uint32
	if _, err := fmt.Sscanf(c.Args().Get(1), "%d", &nr); err != nil {
		return cli.Exit("functionNr must be an integer", 1)
	}

	info, err := r.FunctionInfo(nr)
	if err != nil {
		return err
	}
	fmt.Printf("%s:%d %s\n", info.File, info.Line, info.FunctionName)
	fmt.Printf("  self: %s  inclusive: %s  invocations: %d\n", info.SummedSelfCost, info.SummedInclusiveCost, info.InvocationCount)
	for j := uint32(0); j < info.CalledFromInfoCount; j++ {
		edge, err := r.CalledFromInfo(nr, j)
		if err != nil {
			return err
		}
		fmt.Printf("  called from #%d line %d: %s\n", edge.FunctionNr, edge.Line, edge.SummedCallCost)
	}
	for j := uint32(0); j < info.SubCallInfoCount; j++ {
		edge, err := r.SubCallInfo(nr, j)
		if err != nil {
			return err
		}
		fmt.Printf("  calls #%d line %d: %s\n", edge.FunctionNr, edge.Line, edge.SummedCallCost)
	}
	return nil
}

// isStale compares the input trace's current fingerprint against the one
// recorded in indexPath's sidecar ".fingerprint" file the last time it was
// written, so an unchanged trace is skipped even across separate runs.
func isStale(inputPath, indexPath string) (bool, error) {
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		return true, nil
	}
	current, err := digest.FingerprintOf(inputPath)
	if err != nil {
		return false, err
	}
	sidecar := indexPath + ".fingerprint"
	recorded, err := os.ReadFile(sidecar)
	if err != nil {
		return true, nil
	}
	if fmt.Sprintf("%d", current) != string(recorded) {
		return true, nil
	}
	return false, nil
}

func recordFingerprint(inputPath, indexPath string) error {
	current, err := digest.FingerprintOf(inputPath)
	if err != nil {
		return err
	}
	return os.WriteFile(indexPath+".fingerprint", []byte(fmt.Sprintf("%d", current)), 0o644)
}

// runFastPath invokes the configured external preprocessor in place of
// the in-process parser, per SPEC_FULL.md §6: it succeeds iff the binary
// exits 0. Any failure to start or a non-zero exit is treated as the
// fast path being unavailable, never as a fatal error — the caller falls
// back to the in-process Preprocessor.
func runFastPath(binary, inputPath, outputPath, proxyCSV string) bool {
	cmd := exec.Command(binary, inputPath, outputPath, proxyCSV)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run() == nil
}

// proxyFunctionsCSV renders the proxy-function set as a sorted,
// comma-separated list for the fast path's command-line argument.
func proxyFunctionsCSV(proxyFunctions map[string]struct{}) string {
	names := make([]string, 0, len(proxyFunctions))
	for name := range proxyFunctions {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func indexPathFor(tracePath, outDir string) string {
	if outDir == "" {
		return tracePath + ".idx"
	}
	return filepath.Join(outDir, filepath.Base(tracePath)+".idx")
}
