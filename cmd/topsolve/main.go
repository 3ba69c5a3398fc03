// Command topsolve solves one instance file with a named solver and writes the solution.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"topsolver/internal/buildinfo"
	"topsolver/internal/opt"
	"topsolver/internal/route"
)

func main() {
	solverName := flag.String("solver", "greedy", "solver name (see -list)")
	instPath := flag.String("in", "", "instance file")
	initPath := flag.String("init", "", "optional initial solution file")
	optsPath := flag.String("options", "", "YAML or JSON options file")
	outPath := flag.String("out", "", "solution output file (default stdout)")
	seed := flag.Int64("seed", 0, "random seed (0 = clock)")
	maxTime := flag.Duration("max-time", 0, "overall time cap")
	verbose := flag.Bool("v", false, "log every incumbent")
	list := flag.Bool("list", false, "list solvers and their parameters")
	version := flag.Bool("version", false, "print the build version")
	flag.Parse()

	if *version {
		fmt.Println(buildinfo.String())
		return
	}

	if *list {
		printCatalog(os.Stdout)
		return
	}
	if *instPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*solverName, *instPath, *initPath, *optsPath, *outPath, *seed, *maxTime, *verbose); err != nil {
		log.Fatalf("topsolve: %v", err)
	}
}

func run(solverName, instPath, initPath, optsPath, outPath string, seed int64, maxTime time.Duration, verbose bool) error {
	solver, err := opt.Lookup(solverName)
	if err != nil {
		return err
	}
	in, err := route.LoadInstanceFile(instPath)
	if err != nil {
		return err
	}
	opts, err := opt.LoadOptionsFile(optsPath)
	if err != nil {
		return err
	}
	st := route.NewState(in)
	if initPath != "" {
		if st, err = route.LoadSolutionFile(initPath, in); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if maxTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxTime)
		defer cancel()
	}
	var progress opt.Progress
	if verbose {
		progress = func(inc opt.Incumbent) {
			log.Printf("iter=%d profit=%d travel=%.3f feasible=%t elapsed=%s", inc.Iteration, inc.Profit, inc.Travel, inc.Feasible, inc.Elapsed.Round(time.Millisecond))
		}
	}
	m, err := solver.Solve(ctx, st, opt.NewRand(seed), opts, progress)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := route.WriteSolution(w, st); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "instance=%s solver=%s profit=%d/%d feasible=%t travel=%.3f iterations=%d elapsed=%s\n",
		in.Name(), solver.Name(), st.Profit(), in.TotalProfit(), st.Feasible(), st.TotalTravel(), m.Iterations, m.Elapsed.Round(time.Millisecond))
	return nil
}

func printCatalog(w io.Writer) {
	for _, s := range opt.Catalog() {
		fmt.Fprintf(w, "%s\t%s\n", s.Name(), s.Descr())
		for _, p := range s.Params() {
			fmt.Fprintf(w, "  %-22s %-6s default=%v  %s\n", p.Name, p.Type, p.Default, strings.TrimSpace(p.Descr))
		}
	}
}
