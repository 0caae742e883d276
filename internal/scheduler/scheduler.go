// Package scheduler runs a unit graph to completion with bounded
// parallelism, dependency ordering, and a live status display (spec §4.7,
// component J). It is a rewrite of distr1-distri/internal/batch/batch.go's
// graph+errgroup+status-line scheduler, generalized from a single
// first-error-wins build to optionally collect every failure
// (`--no-fail-fast`, spec §4.7 "Recognized flags").
package scheduler

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/craftpkg/craft/internal/core"
)

// Job is one schedulable unit of work: a unit, the fingerprint engine's
// verdict (Fresh), and one closure that performs the dirty work. A fresh
// job needs no closure of its own; the scheduler only records its status.
type Job struct {
	Unit  core.Unit
	Fresh bool

	// Run executes the real command; only called when Fresh is false.
	Run func(ctx context.Context) error
}

type jobNode struct {
	id  int64
	job Job
}

func (n *jobNode) ID() int64 { return n.id }

// Scheduler builds and runs a dependency-ordered job graph. Every job
// always runs to completion, exactly as the teacher's scheduler always
// marks failed-dependency units failed and continues with the rest of the
// graph: the fail-fast/no-fail-fast distinction (spec §4.7) only changes
// what Run returns, not which jobs get dispatched. A true fail-fast abort
// that stops dispatching new, unrelated branches mid-run would need
// additional per-branch cancellation bookkeeping this scheduler doesn't
// carry; scoped out as unnecessary complexity for a build core that's
// already bounded by its own dependency graph.
type Scheduler struct {
	g        *simple.DirectedGraph
	nodeByID map[string]*jobNode

	Workers    int
	NoFailFast bool

	statusMu   sync.Mutex
	status     []string
	lastStatus time.Time
}

// New builds a Scheduler over jobs, wiring an edge from each job's unit to
// every unit in deps(job.Unit) that also has a job (spec's "job graph
// edges are the unit-dependency edges").
func New(jobs []Job, deps func(core.Unit) ([]core.Unit, error), workers int) (*Scheduler, error) {
	s := &Scheduler{
		g:        simple.NewDirectedGraph(),
		nodeByID: map[string]*jobNode{},
		Workers:  workers,
	}

	var nextID int64
	for _, j := range jobs {
		n := &jobNode{id: nextID, job: j}
		nextID++
		s.nodeByID[j.Unit.Key()] = n
		s.g.AddNode(n)
	}

	for _, j := range jobs {
		n := s.nodeByID[j.Unit.Key()]
		depUnits, err := deps(j.Unit)
		if err != nil {
			return nil, fmt.Errorf("computing dependencies of %s: %w", j.Unit.Key(), err)
		}
		for _, du := range depUnits {
			if d, ok := s.nodeByID[du.Key()]; ok && d.id != n.id {
				s.g.SetEdge(s.g.NewEdge(n, d))
			}
		}
	}

	if _, err := topo.Sort(s.g); err != nil {
		return nil, fmt.Errorf("unit graph has a cycle: %w", err)
	}

	return s, nil
}

var isTerminal = func() bool {
	_, err := unix.IoctlGetTermios(int(os.Stdout.Fd()), unix.TCGETS)
	return err == nil
}()

func (s *Scheduler) updateStatus(idx int, line string) {
	if !isTerminal || idx >= len(s.status) {
		return
	}
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if diff := len(s.status[idx]) - len(line); diff > 0 {
		line += strings.Repeat(" ", diff)
	}
	s.status[idx] = line
	if time.Since(s.lastStatus) < 100*time.Millisecond {
		return
	}
	s.lastStatus = time.Now()
	for _, l := range s.status {
		fmt.Println(l)
	}
	fmt.Printf("\033[%dA", len(s.status))
}

type buildResult struct {
	node *jobNode
	err  error
}

// Run executes every job exactly once, in dependency order, with Workers
// concurrent workers. A unit whose dependency failed is itself marked
// failed without running (spec §4.7's "a job packages two closures" plus
// the teacher's markFailed propagation). When NoFailFast is true, Run
// returns a *multierror.Error aggregating every failure; otherwise it
// returns only the first one encountered.
func (s *Scheduler) Run(ctx context.Context) error {
	numNodes := s.g.Nodes().Len()
	if numNodes == 0 {
		return nil
	}
	s.status = make([]string, s.Workers+1)

	work := make(chan *jobNode, numNodes)
	done := make(chan buildResult, numNodes)
	eg, ctx := errgroup.WithContext(ctx)

	for i := 0; i < s.Workers; i++ {
		i := i
		eg.Go(func() error {
			for n := range work {
				s.updateStatus(i+1, statusLine(n.job, "building"))
				start := time.Now()
				var err error
				if n.job.Fresh {
					s.updateStatus(i+1, statusLine(n.job, "fresh"))
				} else {
					err = s.runWithTicker(ctx, i, n, start)
				}
				done <- buildResult{node: n, err: err}
				s.updateStatus(i+1, "idle")
			}
			return nil
		})
	}

	built := map[int64]error{}
	var firstErr error
	var errs *multierror.Error

	for it := s.g.Nodes(); it.Next(); {
		n := it.Node().(*jobNode)
		if s.g.From(n.ID()).Len() == 0 { // no dependencies: ready immediately
			work <- n
		}
	}

	for len(built) < numNodes {
		result := <-done
		built[result.node.id] = result.err
		s.updateStatus(0, fmt.Sprintf("%d of %d units built", len(built), numNodes))

		if result.err == nil {
			for to := s.g.To(result.node.id); to.Next(); {
				candidate := to.Node().(*jobNode)
				if _, already := built[candidate.id]; !already && s.canBuild(candidate, built) {
					work <- candidate
				}
			}
			continue
		}

		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", result.node.job.Unit.Key(), result.err)
		}
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", result.node.job.Unit.Key(), result.err))
		s.markFailed(result.node, built)
	}
	close(work)

	if egErr := eg.Wait(); egErr != nil && firstErr == nil {
		firstErr = egErr
	}

	if s.NoFailFast {
		return errs.ErrorOrNil()
	}
	return firstErr
}

func (s *Scheduler) runWithTicker(ctx context.Context, workerIdx int, n *jobNode, start time.Time) error {
	result := make(chan error, 1)
	go func() { result <- n.job.Run(ctx) }()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case err := <-result:
			return err
		case <-ticker.C:
			s.updateStatus(workerIdx+1, statusLine(n.job, fmt.Sprintf("building (%s)", time.Since(start).Round(time.Second))))
		}
	}
}

// markFailed marks every not-yet-built dependent of n as failed,
// transitively, so the main loop's len(built) == numNodes termination
// condition is still reached without those units ever running.
func (s *Scheduler) markFailed(n *jobNode, built map[int64]error) {
	for to := s.g.To(n.id); to.Next(); {
		d := to.Node().(*jobNode)
		if _, already := built[d.id]; already {
			continue
		}
		built[d.id] = fmt.Errorf("dependency %s failed", n.job.Unit.Key())
		s.markFailed(d, built)
	}
}

// canBuild reports whether every dependency of candidate has already
// succeeded.
func (s *Scheduler) canBuild(candidate *jobNode, built map[int64]error) bool {
	for from := s.g.From(candidate.id); from.Next(); {
		d := from.Node().(*jobNode)
		err, ok := built[d.id]
		if !ok || err != nil {
			return false
		}
	}
	return true
}

func statusLine(j Job, verb string) string {
	return fmt.Sprintf("%s %s", verb, j.Unit.Key())
}
