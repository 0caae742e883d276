package resolver

import "github.com/craftpkg/craft/internal/core"

// applyReplace redirects every resolved id matching a [replace] entry's
// spec to the entry's replacement (spec §4.3, "Replacement": "any
// dependency whose id matches a PackageIdSpec in [replace] is redirected to
// the replacement's source+version after resolution").
func applyReplace(res *Graph, replace []core.ReplaceEntry) {
	if len(replace) == 0 {
		return
	}
	redirect := map[string]core.PackageID{}
	for _, id := range res.order {
		for _, entry := range replace {
			if entry.Spec.Matches(id) {
				redirect[id.Key()] = entry.Replacement
				break
			}
		}
	}
	if len(redirect) == 0 {
		return
	}

	for i, id := range res.order {
		if r, ok := redirect[id.Key()]; ok {
			res.order[i] = r
			if sum, ok := res.summaries[id.Key()]; ok {
				sum.ID = r
				res.summaries[r.Key()] = sum
				delete(res.summaries, id.Key())
			}
			if edges, ok := res.edges[id.Key()]; ok {
				res.edges[r.Key()] = edges
				delete(res.edges, id.Key())
			}
		}
	}
	for k, edges := range res.edges {
		for i, e := range edges {
			if r, ok := redirect[e.Key()]; ok {
				edges[i] = r
			}
		}
		res.edges[k] = edges
	}
}
