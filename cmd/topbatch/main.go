// Command topbatch runs a plan of solver configurations over a directory of instances.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"topsolver/internal/batch"
	"topsolver/internal/integrations/dirsource"
	"topsolver/internal/opt"
)

func main() {
	planPath := flag.String("plan", "plan.yaml", "YAML or JSON plan file")
	instDir := flag.String("instances", "instances", "directory of *.txt instances")
	outDir := flag.String("out", "outputs", "directory for the CSV, report and solution files")
	csvName := flag.String("csv", "parallel.csv", "CSV file name inside -out")
	workers := flag.Int("workers", runtime.NumCPU(), "concurrent solves")
	seed := flag.Int64("seed", 0, "fixed seed for every run (0 = clock)")
	maxTime := flag.Duration("max-time", 0, "cap per run on top of its maxTime option")
	noSolutions := flag.Bool("no-solutions", false, "skip writing solution files")
	flag.Parse()

	if err := run(*planPath, *instDir, *outDir, *csvName, *workers, *seed, *maxTime, !*noSolutions); err != nil {
		log.Fatalf("topbatch: %v", err)
	}
}

func run(planPath, instDir, outDir, csvName string, workers int, seed int64, maxTime time.Duration, solutions bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plan, err := batch.LoadPlan(planPath)
	if err != nil {
		return err
	}
	log.Printf("reading instances dir=%s", instDir)
	instances, err := batch.LoadInstances(ctx, dirsource.New(instDir))
	if err != nil {
		return err
	}
	tasks := batch.Expand(plan, instances)
	log.Printf("instances=%d tasks=%d workers=%d", len(instances), len(tasks), workers)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(outDir, csvName))
	if err != nil {
		return err
	}
	defer f.Close()

	ms := opt.NewMetricsStore()
	r := &batch.Runner{Workers: workers, Seed: seed, MaxTime: maxTime, Metrics: ms}
	if solutions {
		r.OutDir = outDir
	}
	started := time.Now()
	results, runErr := r.Run(ctx, tasks, f)

	rep := batch.NewReport(started, results, ms)
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(outDir, "report.json"), b, 0o644); err != nil {
		return err
	}
	fmt.Printf("tasks=%d failed=%d elapsed=%s host=%q cpu=%q\n", rep.Tasks, rep.Failed, rep.Elapsed.Round(time.Millisecond), rep.System.Platform, rep.System.CPU)
	return runErr
}
