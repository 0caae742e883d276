package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/craftpkg/craft/internal/core"
)

func unit(name string) core.Unit {
	sid := core.NewRegistrySourceID("https://example.com/index")
	id, _ := core.NewPackageID(name, "0.1.0", sid)
	return core.Unit{Package: id, Target: core.Target{Kind: core.TargetLib, Name: name}, Profile: core.DefaultProfiles()["dev"], Kind: core.TargetArch}
}

// depGraph builds a deps func from a static adjacency map, mirroring how
// buildctx.DepTargets would be called in production.
func depGraph(edges map[string][]string, units map[string]core.Unit) func(core.Unit) ([]core.Unit, error) {
	return func(u core.Unit) ([]core.Unit, error) {
		var out []core.Unit
		for _, name := range edges[u.Target.Name] {
			out = append(out, units[name])
		}
		return out, nil
	}
}

func TestRunBuildsInDependencyOrder(t *testing.T) {
	units := map[string]core.Unit{"a": unit("a"), "b": unit("b"), "c": unit("c")}
	// a depends on b, b depends on c
	deps := depGraph(map[string][]string{"a": {"b"}, "b": {"c"}}, units)

	var mu sync.Mutex
	var order []string
	jobFor := func(name string) Job {
		return Job{Unit: units[name], Run: func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}}
	}
	jobs := []Job{jobFor("a"), jobFor("b"), jobFor("c")}

	s, err := New(jobs, deps, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	if pos["c"] > pos["b"] || pos["b"] > pos["a"] {
		t.Fatalf("expected c before b before a, got %v", order)
	}
}

func TestRunPropagatesFailureToDependents(t *testing.T) {
	units := map[string]core.Unit{"a": unit("a"), "b": unit("b")}
	deps := depGraph(map[string][]string{"a": {"b"}}, units)

	bCalled := false
	jobs := []Job{
		{Unit: units["a"], Run: func(ctx context.Context) error { return nil }},
		{Unit: units["b"], Run: func(ctx context.Context) error {
			bCalled = true
			return errors.New("boom")
		}},
	}

	s, err := New(jobs, deps, 2)
	if err != nil {
		t.Fatal(err)
	}
	err = s.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !bCalled {
		t.Fatal("expected b's Run to have been invoked")
	}
}

func TestNoFailFastCollectsAllFailures(t *testing.T) {
	units := map[string]core.Unit{"a": unit("a"), "b": unit("b")}
	deps := depGraph(map[string][]string{}, units) // independent

	jobs := []Job{
		{Unit: units["a"], Run: func(ctx context.Context) error { return errors.New("fail-a") }},
		{Unit: units["b"], Run: func(ctx context.Context) error { return errors.New("fail-b") }},
	}

	s, err := New(jobs, deps, 2)
	if err != nil {
		t.Fatal(err)
	}
	s.NoFailFast = true
	err = s.Run(context.Background())
	if err == nil {
		t.Fatal("expected an aggregated error")
	}
	if got := err.Error(); !containsBoth(got, "fail-a", "fail-b") {
		t.Fatalf("expected both failures in aggregated error, got: %s", got)
	}
}

func TestNewRejectsCyclicGraph(t *testing.T) {
	units := map[string]core.Unit{"a": unit("a"), "b": unit("b")}
	deps := depGraph(map[string][]string{"a": {"b"}, "b": {"a"}}, units)
	jobs := []Job{
		{Unit: units["a"], Run: func(ctx context.Context) error { return nil }},
		{Unit: units["b"], Run: func(ctx context.Context) error { return nil }},
	}
	if _, err := New(jobs, deps, 2); err == nil {
		t.Fatal("expected a cycle error")
	}
}

func TestFreshJobsSkipRun(t *testing.T) {
	units := map[string]core.Unit{"a": unit("a")}
	deps := depGraph(map[string][]string{}, units)
	called := false
	jobs := []Job{{Unit: units["a"], Fresh: true, Run: func(ctx context.Context) error {
		called = true
		return nil
	}}}
	s, err := New(jobs, deps, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Fatal("expected a fresh job's Run to be skipped")
	}
}

func containsBoth(s, a, b string) bool {
	return contains(s, a) && contains(s, b)
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}
