package workspace

import (
	"github.com/craftpkg/craft/internal/core"
	"github.com/craftpkg/craft/internal/lockfile"
)

// StalenessCheck reports whether lf must be recomputed before a build may
// proceed, per spec §9 ("Lockfile staleness"): (a) any manifest dependency
// whose requirement no longer matches its locked version, or (b) any
// package in the lock no longer reachable from any root.
func StalenessCheck(ws *Workspace, lf *lockfile.Lockfile) (stale bool, reason string) {
	if lf == nil {
		return true, "no lockfile present"
	}

	locked := map[string]core.PackageID{} // name -> locked id (first match wins)
	for _, id := range lf.Packages {
		if _, ok := locked[id.Name()]; !ok {
			locked[id.Name()] = id
		}
	}

	for _, m := range ws.Members {
		for _, dep := range m.Manifest.Summary.Dependencies {
			id, ok := locked[dep.Name]
			if !ok {
				continue // new dependency, not yet locked: not staleness, just a fresh resolve
			}
			if !dep.Req.Check(id.Version()) {
				return true, "dependency \"" + dep.Name + "\" no longer satisfies its locked version " + id.Version().String()
			}
		}
	}

	reachable := reachableFromRoots(ws, lf)
	for _, id := range lf.Packages {
		if !reachable[id.Key()] {
			return true, "package \"" + id.Name() + "\" in the lockfile is no longer reachable from any workspace member"
		}
	}

	return false, ""
}

func reachableFromRoots(ws *Workspace, lf *lockfile.Lockfile) map[string]bool {
	reachable := map[string]bool{}
	byName := map[string]core.PackageID{}
	for _, id := range lf.Packages {
		byName[id.Name()] = id
	}

	var visit func(id core.PackageID)
	visit = func(id core.PackageID) {
		k := id.Key()
		if reachable[k] {
			return
		}
		reachable[k] = true
		for _, dep := range lf.Deps[k] {
			visit(dep)
		}
	}

	for _, m := range ws.Members {
		if id, ok := byName[m.Manifest.Summary.ID.Name()]; ok {
			visit(id)
		}
		for _, dep := range m.Manifest.Summary.Dependencies {
			if id, ok := byName[dep.Name]; ok {
				visit(id)
			}
		}
	}
	return reachable
}
