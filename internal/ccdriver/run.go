package ccdriver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/craftpkg/craft/internal/buildctx"
	"github.com/craftpkg/craft/internal/core"
	"github.com/craftpkg/craft/internal/fingerprint"
)

// Diagnostic is one line emitted by the compiler on stdout or stderr,
// tagged by which stream it came from so a caller can reorder or colorize
// (spec §4.7: "Compiler stdout/stderr are captured with non-blocking
// reads (parallel drain of both pipes) to avoid OS-pipe deadlocks").
type Diagnostic struct {
	Stderr bool
	Text   string
}

// Invoke runs cc with args, streaming every output line to onLine as it
// arrives (both pipes are drained concurrently, matching the teacher's own
// exec.CommandContext + explicit Stdout/Stderr pipe pattern in
// distr1-distri/internal/build/build.go's step runner).
func Invoke(ctx context.Context, cc string, args []string, workDir string, env []string, onLine func(Diagnostic)) error {
	cmd := exec.CommandContext(ctx, cc, args...)
	cmd.Dir = workDir
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", cc, err)
	}

	done := make(chan struct{}, 2)
	drain := func(r io.Reader, isStderr bool) {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			onLine(Diagnostic{Stderr: isStderr, Text: sc.Text()})
		}
		done <- struct{}{}
	}
	go drain(stdout, false)
	go drain(stderr, true)
	<-done
	<-done

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s %v: %w", cc, args, err)
	}
	return nil
}

// Finalize performs the post-build steps spec §4.8 describes: renaming a
// metadata-hashed predictable-name artifact to its hyphenated public name,
// and rewriting + relocating the compiler-emitted dep-info file.
func Finalize(c *buildctx.Context, u core.Unit, layout buildctx.Layout, metadataHash, cwd string, isRootPathPackage bool) error {
	if allowsPredictableName(u.Target) {
		publicName, err := c.PrimaryOutputName(u, isRootPathPackage)
		if err != nil {
			return err
		}
		hashedName := publicName
		if isRootPathPackage {
			hashedName = u.Target.Name + "-" + metadataHash
		}
		hashedPath := filepath.Join(layout.DepsDir(), hashedName)
		publicPath := filepath.Join(layout.DepsDir(), publicName)
		if hashedPath != publicPath {
			if err := renameArtifact(hashedPath, publicPath); err != nil {
				return err
			}
		}
	}

	rawDepInfoPath := filepath.Join(layout.DepsDir(), u.Target.Name+"-"+metadataHash+".d")
	raw, err := os.ReadFile(rawDepInfoPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // some unit kinds (e.g. run_custom_build) emit no dep-info
		}
		return fmt.Errorf("reading dep-info: %w", err)
	}
	rewritten := fingerprint.RelativizeDepInfo(string(raw), cwd)

	unitDir := layout.FingerprintUnitDir(u.Package)
	if err := fingerprint.WriteDepInfo(unitDir, rewritten); err != nil {
		return err
	}
	return os.Remove(rawDepInfoPath)
}

func allowsPredictableName(t core.Target) bool {
	return t.IsBin() || t.IsExample() || t.IsCustomBuild()
}

func renameArtifact(from, to string) error {
	return os.Rename(from, to)
}

// HardLinkToPrimary links a root package's deps/ artifact up one level
// into the primary output directory (spec §4.7's ordering-guarantees
// paragraph: "Artifacts in deps/ are hard-linked (or copied as fallback)
// up to the primary output directory for root-package outputs only"),
// falling back to a byte copy when the hard link fails (e.g. deps/ and the
// primary directory live on different filesystems).
func HardLinkToPrimary(depsPath, primaryPath string) error {
	_ = os.Remove(primaryPath) // best effort; Link fails if the target exists
	if err := os.Link(depsPath, primaryPath); err == nil {
		return nil
	}
	src, err := os.Open(depsPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", depsPath, err)
	}
	defer src.Close()
	dst, err := os.Create(primaryPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", primaryPath, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copying %s to %s: %w", depsPath, primaryPath, err)
	}
	return nil
}
