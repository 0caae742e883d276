package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"

	craft "github.com/craftpkg/craft"
	"github.com/craftpkg/craft/internal/workspace"
)

// cmdclean implements `craft clean`: removes the workspace's target
// directory wholesale, the simplest possible reading of spec §6's "target
// directory layout" (a per-package --release/--package prune is future
// work, not needed by anything SPEC_FULL.md names).
func cmdclean(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("clean", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	manifestPath, err := workspace.LocateRoot(mustGetwd())
	if err != nil {
		return craft.Human(err, "could not locate a Craft.toml")
	}
	targetDir := filepath.Join(filepath.Dir(manifestPath), "target")
	if err := os.RemoveAll(targetDir); err != nil {
		return craft.Human(err, "removing target directory")
	}
	return nil
}
