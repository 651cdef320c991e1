package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/pflag"

	"github.com/nkhmaladze/BufferManagerDB/internal"
	"github.com/nkhmaladze/BufferManagerDB/internal/bufferpool"
	"github.com/nkhmaladze/BufferManagerDB/internal/catalog"
	"github.com/nkhmaladze/BufferManagerDB/internal/engine"
	"github.com/nkhmaladze/BufferManagerDB/internal/storage"
	"github.com/nkhmaladze/BufferManagerDB/internal/workload"
)

const benchFile = "bench"

// flag name -> config key
var flagKeys = map[string]string{
	"policy":      "bench.policies",
	"workload":    "bench.workload",
	"extra-pages": "bench.extra_pages",
	"ops":         "bench.ops",
	"pool-size":   "buffer_pool.size",
	"seed":        "buffer_pool.seed",
	"data-dir":    "storage.workdir",
	"in-memory":   "storage.in_memory",
	"log-level":   "log.level",
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("bufbench failed", "err", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	kinds := make([]string, 0, len(workload.Kinds()))
	for _, k := range workload.Kinds() {
		kinds = append(kinds, string(k))
	}

	flags := pflag.NewFlagSet("bufbench", pflag.ContinueOnError)
	configPath := flags.String("config", "", "YAML config file")
	flags.StringSlice("policy", nil, "replacement policy to compare, repeatable (clock, random)")
	flags.String("workload", "", "access pattern: "+strings.Join(kinds, ", "))
	flags.Int("extra-pages", 0, "pages in the working set beyond the pool size")
	flags.Int("ops", 0, "page requests per run")
	flags.Int("pool-size", 0, "frames in the buffer pool")
	flags.Uint64("seed", 0, "seed for random policy and workload")
	flags.String("data-dir", "", "directory for data files, one subdirectory per policy")
	flags.Bool("in-memory", false, "keep all files in memory")
	flags.String("log-level", "", "debug, info, warn or error")
	if err := flags.Parse(args); err != nil {
		return err
	}

	v := internal.NewViper()
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return err
		}
	}
	if *configPath != "" {
		v.SetConfigFile(*configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	cfg, err := internal.Decode(v)
	if err != nil {
		return err
	}

	lvl, _ := cfg.SlogLevel()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))

	kind, err := workload.ParseKind(cfg.Bench.Workload)
	if err != nil {
		return err
	}
	policies, err := cfg.BenchPolicies()
	if err != nil {
		return err
	}
	if len(policies) == 0 {
		return errors.New("no policy to run")
	}

	slog.Info("bufbench: start",
		"app", cfg.AppName,
		"workload", kind,
		"policies", cfg.Bench.Policies,
		"pool_size", cfg.BufferPool.Size,
		"extra_pages", cfg.Bench.ExtraPages,
		"ops", cfg.Bench.Ops,
	)

	p := pool.NewWithResults[workload.Result]().WithErrors()
	for _, policy := range policies {
		p.Go(func() (workload.Result, error) {
			return bench(*cfg, policy, kind)
		})
	}
	results, err := p.Wait()
	if err != nil {
		return err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Policy < results[j].Policy })

	size := cfg.BufferPool.Size
	if size <= 0 {
		size = bufferpool.DefaultCapacity
	}
	return report(out, results, size+cfg.Bench.ExtraPages)
}

// bench runs kind on a stack of its own using policy.
func bench(cfg internal.Config, policy bufferpool.PolicyType, kind workload.Kind) (workload.Result, error) {
	cfg.BufferPool.Policy = policy
	if !cfg.Storage.InMemory {
		cfg.Storage.Workdir = filepath.Join(cfg.Storage.Workdir, policy.String())
	}

	db, err := engine.OpenConfig(&cfg)
	if err != nil {
		return workload.Result{}, err
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Warn("bufbench: close", "policy", policy, "err", err)
		}
	}()

	// Start from an empty file on every run.
	switch err := db.DropFile(benchFile); {
	case err == nil, errors.Is(err, catalog.ErrNotFound):
	default:
		return workload.Result{}, err
	}
	if _, err := db.CreateFile(benchFile); err != nil {
		return workload.Result{}, err
	}
	view, err := db.OpenFile(benchFile)
	if err != nil {
		return workload.Result{}, err
	}

	data, err := workload.Prepare(view, db.Pool.Size()+cfg.Bench.ExtraPages)
	if err != nil {
		return workload.Result{}, err
	}
	return workload.Run(db.Pool, data, kind, workload.Params{
		Ops:  cfg.Bench.Ops,
		Seed: cfg.BufferPool.Seed,
	})
}

func report(out io.Writer, results []workload.Result, pages int) error {
	fmt.Fprintf(out, "working set: %s pages (%s)\n\n",
		humanize.Comma(int64(pages)),
		humanize.IBytes(uint64(pages)*storage.PageSize),
	)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "policy\tworkload\trequests\tmisses\thit ratio\tavg examined\telapsed\t")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s%%\t%s\t%s\t\n",
			r.Policy,
			r.Kind,
			humanize.Comma(int64(r.Requests)),
			humanize.Comma(int64(r.Misses)),
			humanize.CommafWithDigits(r.HitRatio()*100, 2),
			humanize.CommafWithDigits(r.AvgExamined, 2),
			r.Elapsed.Round(time.Microsecond),
		)
	}
	return w.Flush()
}
