package buildctx

import (
	"fmt"
	"strings"

	"github.com/craftpkg/craft/internal/core"
)

// DepTargets computes the set of units u transitively requires (spec
// §4.4): one unit per library target for each normal dependency (kind
// lifted to Host when the dependency's library target is for_host), one
// Host-kind library unit per build dependency, the run_custom_build unit of
// any dependency that declares links=<name> (spec §4.4/§4.6's "enforces
// deterministic ordering between native-library producers and consumers" —
// this applies uniformly whether u is an ordinary compile unit or the
// consuming package's own run_custom_build unit, since both need the
// producer's script to have already run), the unit's own package library
// (if u isn't the lib target itself), the package's own run_custom_build
// unit when it has a build script and isn't overridden, the compiled script
// binary when u is itself a run_custom_build unit, and sibling binaries for
// integration test/bench units.
func (c *Context) DepTargets(u core.Unit) ([]core.Unit, error) {
	m, err := c.manifestFor(u.Package)
	if err != nil {
		return nil, err
	}

	var out []core.Unit

	resolvedDeps := c.Resolve.Deps(u.Package)
	byName := map[string]core.PackageID{}
	for _, id := range resolvedDeps {
		byName[id.Name()] = id
	}

	for _, dep := range m.Summary.Dependencies {
		if dep.Kind == core.KindDev && !u.Target.IsTest() && !u.Target.IsBench() {
			continue // dev-deps only wire into test/bench units
		}
		depID, ok := byName[dep.Name]
		if !ok {
			continue // optional/platform-filtered dependency that didn't activate
		}
		depManifest, err := c.manifestFor(depID)
		if err != nil {
			return nil, err
		}
		lib, ok := depManifest.LibTarget()
		if !ok {
			continue
		}
		kind := u.Kind
		if dep.Kind == core.KindBuild || lib.ForHost {
			kind = core.Host
		}
		profile := libProfile(u.Profile)
		out = append(out, core.Unit{Package: depID, Target: lib, Profile: profile, Kind: kind})

		if depManifest.Links != "" {
			if bs, ok := depManifest.CustomBuildTarget(); ok {
				producerScript := core.Unit{Package: depID, Target: bs, Profile: c.buildScriptProfile(), Kind: core.Host}
				out = append(out, c.runCustomBuildUnit(depID, producerScript))
			}
		}
	}

	if lib, ok := m.LibTarget(); ok && !u.Target.IsLib() {
		out = append(out, core.Unit{Package: u.Package, Target: lib, Profile: libProfile(u.Profile), Kind: u.Kind})
	}

	if bs, ok := m.CustomBuildTarget(); ok && u.Profile.RunCustomBuild {
		scriptUnit := core.Unit{Package: u.Package, Target: bs, Profile: c.buildScriptProfile(), Kind: core.Host}
		out = append(out, scriptUnit)
		out = append(out, c.runCustomBuildUnit(u.Package, scriptUnit))
	}

	if u.Target.IsCustomBuild() && strings.HasSuffix(u.Target.Name, "-run") {
		if bs, ok := m.CustomBuildTarget(); ok {
			out = append(out, core.Unit{Package: u.Package, Target: bs, Profile: c.buildScriptProfile(), Kind: core.Host})
		}
	}

	if u.Target.IsTest() || u.Target.IsBench() {
		for _, bin := range m.Binaries() {
			if bin.Name != u.Target.Name {
				out = append(out, core.Unit{Package: u.Package, Target: bin, Profile: u.Profile, Kind: u.Kind})
			}
		}
	}

	return out, nil
}

// libProfile derives the dependency's own build profile from the
// consuming unit's profile: dependencies of a test/bench root are still
// built as ordinary libs (never carrying the TestFlag), matching Cargo's
// "deps of tests are dev-profile libs, not test-profile libs" rule.
func libProfile(consumer core.Profile) core.Profile {
	p := consumer
	p.TestFlag = false
	p.DocFlag = false
	return p
}

func (c *Context) buildScriptProfile() core.Profile {
	return core.DefaultProfiles()["custom_build"]
}

// runCustomBuildUnit synthesizes the run_custom_build unit for scriptUnit
// (the compiled build-script binary): the same unit with "-run" appended to
// its target name, so the scheduler and the CLI driver can distinguish
// "compile the script" jobs from "execute the script" jobs
// (strings.HasSuffix(target.Name, "-run")). Its dependency edges (the
// script binary itself, plus the run-units of every dependency that
// declares links=<name>, per spec §4.6) are added by DepTargets, not here:
// pkg need not be the caller's own package,
// since this is also used to build a links-producing dependency's run unit.
func (c *Context) runCustomBuildUnit(pkg core.PackageID, scriptUnit core.Unit) core.Unit {
	runTarget := scriptUnit.Target
	runTarget.Name = runTarget.Name + "-run"
	return core.Unit{Package: pkg, Target: runTarget, Profile: scriptUnit.Profile, Kind: core.Host}
}

// LinksProducers returns, among deps, the PackageIDs whose manifest
// declares a non-empty Links, needed to wire run_custom_build ordering and
// DEP_<LINK>_<KEY> propagation (spec §4.6).
func (c *Context) LinksProducers(deps []core.PackageID) (map[string]core.PackageID, error) {
	out := map[string]core.PackageID{}
	for _, id := range deps {
		m, err := c.manifestFor(id)
		if err != nil {
			return nil, fmt.Errorf("resolving links producer: %w", err)
		}
		if m.Links != "" {
			out[m.Links] = id
		}
	}
	return out, nil
}
