// Command vannoy is a thin operational wrapper around one vannoy
// database: add, delete, build, query and stats against a single index
// prefix. It exists for poking at an index from a shell; applications
// use the library directly.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/xDarkicex/vannoy"
)

// Exit codes: 0 success, 1 storage/other failure, 2 validation failure,
// 3 cancelled.
const (
	exitOK         = 0
	exitFailure    = 1
	exitValidation = 2
	exitCancelled  = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return exitValidation
	}
	cmd, args := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	path := fs.String("path", "./vannoy-data", "database directory")
	prefix := fs.Uint("prefix", 0, "index prefix (0-65535)")
	dims := fs.Int("dims", 0, "vector dimensionality")
	distance := fs.String("distance", "angular", "distance metric name")

	id := fs.Uint("id", 0, "item id")
	vecStr := fs.String("vector", "", "comma-separated float vector")
	k := fs.Int("k", 10, "number of neighbors to return")
	searchK := fs.Int("search-k", 0, "probe budget (0 = automatic)")
	nTrees := fs.Int("trees", 0, "tree count (0 = automatic)")
	seed := fs.Int64("seed", 0, "build/query seed")

	if err := fs.Parse(args); err != nil {
		return exitValidation
	}
	if *prefix > 65535 {
		fmt.Fprintln(os.Stderr, "vannoy: prefix must fit in 16 bits")
		return exitValidation
	}
	if *dims <= 0 {
		fmt.Fprintln(os.Stderr, "vannoy: -dims is required")
		return exitValidation
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := vannoy.New(vannoy.WithPath(*path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "vannoy: %v\n", err)
		return exitFailure
	}
	defer db.Close()

	idx, err := db.Index(uint16(*prefix),
		vannoy.WithDimensions(*dims),
		vannoy.WithDistance(*distance),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vannoy: %v\n", err)
		return exitCode(err)
	}

	switch cmd {
	case "add":
		vec, err := parseVector(*vecStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vannoy: %v\n", err)
			return exitValidation
		}
		if err := idx.Insert(ctx, uint32(*id), vec); err != nil {
			fmt.Fprintf(os.Stderr, "vannoy: %v\n", err)
			return exitCode(err)
		}
		fmt.Printf("added item %d\n", *id)
		return exitOK

	case "delete":
		existed, err := idx.Delete(ctx, uint32(*id))
		if err != nil {
			fmt.Fprintf(os.Stderr, "vannoy: %v\n", err)
			return exitCode(err)
		}
		if !existed {
			fmt.Printf("item %d did not exist\n", *id)
		} else {
			fmt.Printf("deleted item %d\n", *id)
		}
		return exitOK

	case "build":
		opts := []vannoy.BuildOption{vannoy.WithNTrees(*nTrees)}
		if *seed != 0 {
			opts = append(opts, vannoy.WithSeed(*seed))
		}
		if err := idx.Build(ctx, opts...); err != nil {
			fmt.Fprintf(os.Stderr, "vannoy: %v\n", err)
			return exitCode(err)
		}
		stats, err := idx.Stats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vannoy: %v\n", err)
			return exitCode(err)
		}
		fmt.Printf("built %d trees (%d split nodes, %d descendants nodes)\n",
			stats.Trees, stats.SplitPlaneNodes, stats.DescendantsNodes)
		return exitOK

	case "query":
		vec, err := parseVector(*vecStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vannoy: %v\n", err)
			return exitValidation
		}
		res, err := idx.Query(ctx).
			WithVector(vec).
			Limit(*k).
			WithSearchK(*searchK).
			WithSeed(*seed).
			Execute()
		if err != nil {
			fmt.Fprintf(os.Stderr, "vannoy: %v\n", err)
			return exitCode(err)
		}
		for _, m := range res.Results {
			fmt.Printf("%d\t%g\n", m.ID, m.Distance)
		}
		return exitOK

	case "stats":
		stats, err := idx.Stats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "vannoy: %v\n", err)
			return exitCode(err)
		}
		fmt.Printf("trees:             %d\n", stats.Trees)
		fmt.Printf("max depth:         %d\n", stats.MaxDepth)
		fmt.Printf("split nodes:       %d\n", stats.SplitPlaneNodes)
		fmt.Printf("degenerate splits: %d\n", stats.DegenerateSplits)
		fmt.Printf("descendants nodes: %d\n", stats.DescendantsNodes)
		fmt.Printf("descendant items:  %d\n", stats.DescendantItems)
		return exitOK

	default:
		usage()
		return exitValidation
	}
}

func exitCode(err error) int {
	var verr *vannoy.Error
	if errors.As(err, &verr) {
		switch verr.Code {
		case vannoy.CodeValidation:
			return exitValidation
		case vannoy.CodeControl:
			return exitCancelled
		}
	}
	if errors.Is(err, context.Canceled) {
		return exitCancelled
	}
	return exitFailure
}

func parseVector(s string) ([]float32, error) {
	if s == "" {
		return nil, fmt.Errorf("-vector is required")
	}
	parts := strings.Split(s, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %q: %w", p, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: vannoy <add|delete|build|query|stats> [flags]

common flags:
  -path      database directory (default ./vannoy-data)
  -prefix    index prefix, 0-65535 (default 0)
  -dims      vector dimensionality (required)
  -distance  angular|euclidean|manhattan|dot-product|hamming|binary-quantized-{angular,euclidean,manhattan}

add:    -id N -vector "1,2,3"
delete: -id N
build:  [-trees N] [-seed N]
query:  -vector "1,2,3" [-k N] [-search-k N] [-seed N]
stats:`)
}
