package buildscript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/renameio"
)

// outputFile is the name persisted output lives under inside a unit's
// fingerprint directory (spec §4.6 step 4: "Persist the parsed output
// under `.fingerprint/.../output`").
const outputFile = "output"

// Run invokes the compiled build-script binary at scriptPath with env, in
// workDir, capturing and parsing its stdout per the cargo: protocol. A
// non-zero exit is reported verbatim with captured stderr, matching the
// teacher's own "show the failing command's stderr" convention
// (distr1-distri/internal/build/build.go's exec.Command error wrapping).
func Run(ctx context.Context, scriptPath, workDir string, env []string) (Output, error) {
	cmd := exec.CommandContext(ctx, scriptPath)
	cmd.Dir = workDir
	cmd.Env = env
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Output{}, fmt.Errorf("running build script %s: %w\n%s", scriptPath, err, stderr.String())
	}
	return Parse(stdout.String()), nil
}

// persistedOutput is the on-disk JSON shape for a run's parsed Output;
// separated from Output itself so the wire format stays stable even if
// Output's field layout changes.
type persistedOutput struct {
	LinkLibs          []LinkLib         `json:"link_libs"`
	LinkSearch        []LinkSearch      `json:"link_search"`
	Flags             []string          `json:"flags"`
	Cfgs              []string          `json:"cfgs"`
	Env               map[string]string `json:"env"`
	RerunIfChanged    []string          `json:"rerun_if_changed"`
	RerunIfEnvChanged []string          `json:"rerun_if_env_changed"`
	Warnings          []string          `json:"warnings"`
	Metadata          map[string]string `json:"metadata"`
}

// SaveOutput atomically persists a run's parsed Output under dir.
func SaveOutput(dir string, out Output) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	p := persistedOutput(out)
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling build output: %w", err)
	}
	return renameio.WriteFile(filepath.Join(dir, outputFile), b, 0o644)
}

// LoadOutput reads a previously persisted Output, or (Output{}, false, nil)
// if none exists yet.
func LoadOutput(dir string) (Output, bool, error) {
	b, err := os.ReadFile(filepath.Join(dir, outputFile))
	if os.IsNotExist(err) {
		return Output{}, false, nil
	}
	if err != nil {
		return Output{}, false, fmt.Errorf("reading build output: %w", err)
	}
	var p persistedOutput
	if err := json.Unmarshal(b, &p); err != nil {
		return Output{}, false, fmt.Errorf("parsing build output: %w", err)
	}
	return Output(p), true, nil
}
