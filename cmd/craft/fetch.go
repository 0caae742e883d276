package main

import (
	"context"
	"flag"

	craft "github.com/craftpkg/craft"
)

// cmdfetch implements `craft fetch`: resolve the workspace's dependencies
// and write Craft.lock, without compiling anything (spec §4.2/§4.3's
// resolve-then-lock pipeline on its own, the "cargo fetch" analogue).
func cmdfetch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	frozen := fs.Bool("frozen", false, "require an up-to-date Craft.lock and skip source updates")
	offline := fs.Bool("offline", false, "never access the network")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := craft.NewConfig()
	cfg.Frozen = *frozen
	cfg.Offline = *offline

	p, err := loadProject(ctx, cfg, mustGetwd())
	if err != nil {
		return err
	}
	return p.saveLockfile()
}
