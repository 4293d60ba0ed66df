// Command buildver prints the clockcord build version for ldflags:
//
//	go build -ldflags "$(go run ./cmd/buildver -ldflags)" ./cmd/clockcord
//
// Output depends on git state:
//
//	No tags, clean:     0.0.0-dev+05ffee5
//	No tags, dirty:     0.0.0-dev+05ffee5.dirty
//	On tag v0.1.0:      0.1.0
//	Dirty tag:          0.1.0-dirty
//	3 past v0.1.0:      0.1.0-dev.3+g1234567
//	Same but dirty:     0.1.0-dev.3+g1234567.dirty
//
// The untagged base comes from the "." key of the release manifest, the
// same file the daemon's update check reads.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// versionVar is the ldflags target in cmd/clockcord.
const versionVar = "main.version"

// gitFunc runs git with args and returns its trimmed stdout.
type gitFunc func(args ...string) (string, error)

func runGit(args ...string) (string, error) {
	out, err := exec.Command("git", args...).Output()
	return strings.TrimSpace(string(out)), err
}

func main() {
	manifest := flag.String("manifest", ".release-manifest.json", "Release manifest holding the base version")
	ldflags := flag.Bool("ldflags", false, "Print a -X flag for "+versionVar+" instead of the bare version")
	flag.Parse()

	v := buildVersion(runGit, baseVersion(*manifest))
	if *ldflags {
		fmt.Printf("-X %s=%s", versionVar, v)
		return
	}
	fmt.Print(v)
}

// buildVersion describes HEAD against v-prefixed tags, falling back to
// base-dev+<hash> when there are none.
func buildVersion(git gitFunc, base string) string {
	if desc, err := git("describe", "--tags", "--match", "v*", "--dirty"); err == nil {
		return formatTaggedVersion(desc)
	}

	hash, err := git("rev-parse", "--short=7", "HEAD")
	if err != nil {
		return base + "-dev"
	}
	if isDirty(git) {
		return fmt.Sprintf("%s-dev+%s.dirty", base, hash)
	}
	return fmt.Sprintf("%s-dev+%s", base, hash)
}

// formatTaggedVersion turns git describe output such as
// "v0.1.0-3-g1234567-dirty" into "0.1.0-dev.3+g1234567.dirty".
func formatTaggedVersion(desc string) string {
	dirty := strings.HasSuffix(desc, "-dirty")
	clean := strings.TrimPrefix(strings.TrimSuffix(desc, "-dirty"), "v")

	// <tag>-<N>-g<hash>
	if rest, hash, ok := cutLast(clean, "-"); ok && strings.HasPrefix(hash, "g") {
		if tag, n, ok := cutLast(rest, "-"); ok && isDigits(n) {
			meta := hash
			if dirty {
				meta += ".dirty"
			}
			return fmt.Sprintf("%s-dev.%s+%s", tag, n, meta)
		}
	}

	if dirty {
		return clean + "-dirty"
	}
	return clean
}

func cutLast(s, sep string) (before, after string, ok bool) {
	i := strings.LastIndex(s, sep)
	if i <= 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// isDirty reports whether the working tree has uncommitted changes.
func isDirty(git gitFunc) bool {
	out, err := git("status", "--porcelain")
	return err == nil && out != ""
}

// baseVersion reads the "." entry of the manifest at path, or "0.0.0".
func baseVersion(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "0.0.0"
	}
	var manifest map[string]string
	if err := json.Unmarshal(data, &manifest); err != nil {
		return "0.0.0"
	}
	if v := manifest["."]; v != "" {
		return v
	}
	return "0.0.0"
}
