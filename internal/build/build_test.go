package build

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDetectBuildCommand(t *testing.T) {
	cases := []struct {
		name string
		file string
		body string
		want string
	}{
		{"node with build script", "package.json", `{"scripts":{"build":"vite build"}}`, "npm install && npm run build"},
		{"node without build script", "package.json", `{"scripts":{"start":"node index.js"}}`, "npm install"},
		{"go module", "go.mod", "module example.com/app\n", "go build -o app ."},
		{"python", "requirements.txt", "flask\n", "pip install -r requirements.txt"},
		{"php", "composer.json", "{}", "composer install --no-dev"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, c.file), []byte(c.body), 0o644); err != nil {
				t.Fatalf("write fixture: %v", err)
			}
			if got := detectBuildCommand(dir); got != c.want {
				t.Fatalf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestDetectBuildCommandUnknown(t *testing.T) {
	dir := t.TempDir()
	if got := detectBuildCommand(dir); got != "" {
		t.Fatalf("got %q, want empty string for an unrecognized project", got)
	}
}
