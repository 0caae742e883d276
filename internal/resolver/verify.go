package resolver

import (
	"fmt"

	"github.com/craftpkg/craft/internal/core"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Verify checks that a resolved Graph is acyclic over every recorded
// dependency edge, dev-dependency edges included (a cycle confined to dev
// edges is rejected too). It does not re-check that each edge's target
// satisfies the dependency's version requirement. It is a standalone
// `verify-project`-style operation per SPEC_FULL.md §C.5,
// grounded on original_source/src/ops/cargo_read_manifest.rs's
// verify_project diagnostics.
func Verify(res *Graph) error {
	if err := verifyAcyclic(res); err != nil {
		return err
	}
	return nil
}

// verifyAcyclic builds a gonum directed graph over the resolve's edges and
// rejects any cycle, matching the teacher's own cycle-detection idiom
// (distr1-distri/internal/batch/batch.go's gonum graph + topo.Sort use for
// its job DAG) and spec §8 invariant 2 ("dep_targets(u) ... acyclic").
func verifyAcyclic(res *Graph) error {
	g := simple.NewDirectedGraph()
	nodeIDs := map[string]int64{}
	var next int64
	nodeFor := func(key string) int64 {
		if id, ok := nodeIDs[key]; ok {
			return id
		}
		id := next
		next++
		nodeIDs[key] = id
		g.AddNode(simple.Node(id))
		return id
	}

	for _, id := range res.order {
		from := nodeFor(id.Key())
		for _, dep := range res.edges[id.Key()] {
			to := nodeFor(dep.Key())
			if from != to {
				g.SetEdge(simple.Edge{F: simple.Node(from), T: simple.Node(to)})
			}
		}
	}

	if _, err := topo.Sort(g); err != nil {
		return fmt.Errorf("dependency graph contains a cycle: %w", err)
	}
	return nil
}

// VerifyLinks rejects a package set where two packages claim the same
// `links` value, naming both (spec §8 invariant 5 / scenario S6: "For any
// two packages P1, P2 with links=\"x\", the resolver rejects the graph with
// a diagnostic naming both packages").
func VerifyLinks(manifests map[core.PackageID]string) error {
	owners := map[string]core.PackageID{}
	var ids []core.PackageID
	for id := range manifests {
		ids = append(ids, id)
	}
	sortPackageIDs(ids)
	for _, id := range ids {
		link := manifests[id]
		if link == "" {
			continue
		}
		if other, ok := owners[link]; ok {
			return fmt.Errorf("multiple packages link against native library %q: %s and %s", link, other, id)
		}
		owners[link] = id
	}
	return nil
}

func sortPackageIDs(ids []core.PackageID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j].Less(ids[j-1]); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}
