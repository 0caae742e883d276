// Command craft drives the build-orchestration core as a CLI: resolve a
// workspace's dependencies, write or honor Craft.lock, and compile every
// selected target, grounded on distr1-distri/cmd/distri/distri.go's own
// verb-dispatch-table main().
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	craft "github.com/craftpkg/craft"
)

var (
	verbose = flag.Bool("v", false, "print the full error cause chain on failure")
)

type cmd struct {
	fn func(ctx context.Context, args []string) error
}

func funcmain() error {
	flag.Parse()

	verbs := map[string]cmd{
		"build": {cmdbuild},
		"fetch": {cmdfetch},
		"clean": {cmdclean},
	}

	args := flag.Args()
	verb := "build"
	if len(args) > 0 {
		verb, args = args[0], args[1:]
	}

	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: craft <build|fetch|clean> [options]\n")
		os.Exit(2)
	}

	ctx, canc := craft.InterruptibleContext()
	defer canc()

	if err := v.fn(ctx, args); err != nil {
		if *verbose || !craft.IsHuman(err) {
			return fmt.Errorf("%s: %+v", verb, err)
		}
		return fmt.Errorf("%s: %v", verb, err)
	}

	return craft.RunAtExit()
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
