// Package main implements the genconfig tool that writes config.default.toml
// from config.ExampleConfig().
//
// It is invoked by go generate via the directive in internal/config/config.go.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"tools.zach/dev/clockcord/internal/config"
)

func main() {
	// go generate runs from internal/config/; ../../ is the repo root where
	// configdata.go embeds the file.
	out := flag.String("o", "../../config.default.toml", "output path")
	flag.Parse()

	text, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "genconfig: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, []byte(text), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *out)
}

// render encodes cfg as TOML and annotates it with docs. Indentation from
// the encoder is stripped, sections get a banner, and tables that only
// hold sub-tables (e.g. [notify]) are folded into their children.
func render(cfg *config.Config, docs map[string]config.FieldDoc) (string, error) {
	var raw bytes.Buffer
	if err := toml.NewEncoder(&raw).Encode(cfg); err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	out := []string{
		"# ///////////////////////////////////////////////",
		"# Clockcord Configuration",
		"# ///////////////////////////////////////////////",
		"",
	}
	comment := func(text string) {
		for _, cl := range strings.Split(text, "\n") {
			out = append(out, "# "+cl)
		}
	}

	lines := nonEmpty(strings.Split(raw.String(), "\n"))
	var section []string
	emitted := map[string]bool{}

	for i, line := range lines {
		if isSectionHeader(line) {
			injectOmitted(&out, docs, section, emitted)

			name := strings.Trim(line, "[] ")
			section = parseSectionPath(name)

			if i+1 < len(lines) && isSectionHeader(lines[i+1]) {
				continue
			}

			out = append(out, "", fmt.Sprintf("# ///// %s /////", sectionName(name)), "")
			if doc, ok := docs[name]; ok && doc.Comment != "" {
				comment(doc.Comment)
			}
			out = append(out, line)
			continue
		}

		if !strings.Contains(line, "=") || strings.HasPrefix(line, "#") {
			out = append(out, line)
			continue
		}

		key := strings.TrimSpace(strings.SplitN(line, "=", 2)[0])
		path := key
		if len(section) > 0 {
			path = strings.Join(section, ".") + "." + key
		}
		emitted[path] = true

		doc := docs[path]
		if doc.Comment != "" {
			comment(doc.Comment)
		}
		out = append(out, line)
		for _, alt := range doc.Alternatives {
			out = append(out, "# "+alt)
		}
	}
	injectOmitted(&out, docs, section, emitted)

	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n", nil
}

// nonEmpty trims every line and drops blank ones; spacing is re-added by render.
func nonEmpty(lines []string) []string {
	kept := lines[:0]
	for _, l := range lines {
		if t := strings.TrimSpace(l); t != "" {
			kept = append(kept, t)
		}
	}
	return kept
}

func isSectionHeader(line string) bool {
	return strings.HasPrefix(line, "[") && !strings.HasPrefix(line, "[[")
}

// injectOmitted appends commented-out entries for documented keys of the
// current section that the encoder did not emit, sorted by path.
func injectOmitted(out *[]string, docs map[string]config.FieldDoc, section []string, emitted map[string]bool) {
	if len(section) == 0 {
		return
	}
	prefix := strings.Join(section, ".") + "."

	var omitted []string
	for path := range docs {
		rest, ok := strings.CutPrefix(path, prefix)
		if !ok || strings.Contains(rest, ".") || emitted[path] {
			continue
		}
		omitted = append(omitted, path)
	}
	sort.Strings(omitted)

	for _, path := range omitted {
		doc := docs[path]
		*out = append(*out, "")
		if doc.Comment != "" {
			for _, cl := range strings.Split(doc.Comment, "\n") {
				*out = append(*out, "# "+cl)
			}
		}
		for _, alt := range doc.Alternatives {
			*out = append(*out, "# "+alt)
		}
		emitted[path] = true
	}
}

// parseSectionPath splits a dotted TOML section header (e.g. "notify.slack")
// into its path segments (["notify", "slack"]).
func parseSectionPath(section string) []string {
	return strings.Split(section, ".")
}

// sectionName returns the last dotted segment of a section header with its
// first letter capitalized: "notify.slack" yields "Slack".
func sectionName(section string) string {
	parts := strings.Split(section, ".")
	last := parts[len(parts)-1]
	if len(last) == 0 {
		return ""
	}
	return strings.ToUpper(last[:1]) + last[1:]
}
