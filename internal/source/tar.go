package source

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// unpackTarGz extracts a gzip-compressed tar archive into destDir, stripping
// the first path component (every registry tarball is rooted in a single
// "<name>-<version>/" directory, matching Cargo's .crate layout).
//
// Built on archive/tar + compress/gzip rather than a third-party archive
// library: the pack's only archive-format dependencies
// (cavaliercoder/go-cpio, klauspost/compress, klauspost/pgzip) are
// distri's squashfs/cpio package-image tooling, dropped per DESIGN.md
// because nothing in this spec builds squashfs images; tar.gz is not a
// format any wired dependency speaks.
func unpackTarGz(data []byte, destDir string) error {
	gz, err := gzip.NewReader(strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}
		name := stripFirstComponent(hdr.Name)
		if name == "" {
			continue
		}
		target := filepath.Join(destDir, name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("tar entry %q escapes destination", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode&0o777))
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			f.Close()
		}
	}
}

func stripFirstComponent(name string) string {
	parts := strings.SplitN(filepath.ToSlash(name), "/", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
