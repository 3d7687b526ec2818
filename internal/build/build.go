// Package build implements deployment.BuildSystem by extracting an
// uploaded archive into a per-project source tree and running the build
// command detected from its files (there is no way to declare one),
// generalizing plugins/deploy/builder.go's
// clone/install/build pipeline from a git-fetch source to an
// already-uploaded tarball.
package build

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/web-casa/shuttlectl/internal/deployment"
)

// System extracts and builds project sources under root, one subdirectory
// per project.
type System struct {
	root string
}

// New creates a System rooted at dir (typically <DataDir>/sources).
func New(dir string) *System {
	return &System{root: dir}
}

// Build satisfies deployment.BuildSystem. The archive is expected to be a
// gzipped tarball; its top-level command is detected from the files it
// contains the same way plugins/deploy/detector.go inspects a checked-out
// working tree, and run with the result's combined output tee'd into log.
func (s *System) Build(ctx context.Context, project string, archive []byte, log *deployment.RingLog) (string, error) {
	dir := filepath.Join(s.root, project)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear source dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create source dir: %w", err)
	}

	if err := extractTarGz(archive, dir); err != nil {
		return "", fmt.Errorf("extract archive: %w", err)
	}

	cmd := detectBuildCommand(dir)
	if cmd != "" {
		fmt.Fprintf(log, "$ %s\n", cmd)
		c := exec.CommandContext(ctx, "bash", "-c", cmd)
		c.Dir = dir
		c.Stdout = log
		c.Stderr = log
		if err := c.Run(); err != nil {
			return "", fmt.Errorf("build command failed: %w", err)
		}
	} else {
		fmt.Fprintln(log, "no build command detected, shipping source as-is")
	}

	return dir, nil
}

// detectBuildCommand mirrors plugins/deploy/detector.go's framework sniff,
// narrowed to the one decision Build needs: what command, if any, to run.
func detectBuildCommand(dir string) string {
	switch {
	case exists(dir, "package.json"):
		if hasScript(dir, "build") {
			return "npm install && npm run build"
		}
		return "npm install"
	case exists(dir, "go.mod"):
		return "go build -o app ."
	case exists(dir, "requirements.txt"):
		return "pip install -r requirements.txt"
	case exists(dir, "composer.json"):
		return "composer install --no-dev"
	default:
		return ""
	}
}

func exists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

// hasScript does a cheap substring check for a "build" script key rather
// than a full package.json parse, matching the lightweight sniffing style
// of detector.go's own DetectFramework.
func hasScript(dir, script string) bool {
	b, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return false
	}
	return strings.Contains(string(b), `"`+script+`"`)
}

func extractTarGz(archive []byte, dest string) error {
	gz, err := gzip.NewReader(strings.NewReader(string(archive)))
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(dest, filepath.Clean(hdr.Name))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", hdr.Name)
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
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
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
