package main

import (
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"

	"tools.zach/dev/clockcord/internal/config"
)

// ///////////////////////////////////////////////
// parseSectionPath Tests
// ///////////////////////////////////////////////

func TestParseSectionPath(t *testing.T) {
	tests := []struct {
		name    string
		section string
		want    []string
	}{
		{"single segment", "ledger", []string{"ledger"}},
		{"two segments", "notify.slack", []string{"notify", "slack"}},
		{"three segments", "notify.slack.channel", []string{"notify", "slack", "channel"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSectionPath(tt.section)
			if len(got) != len(tt.want) {
				t.Fatalf("parseSectionPath(%q) returned %d segments, want %d", tt.section, len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parseSectionPath(%q)[%d] = %q, want %q", tt.section, i, got[i], tt.want[i])
				}
			}
		})
	}
}

// ///////////////////////////////////////////////
// sectionName Tests
// ///////////////////////////////////////////////

func TestSectionName(t *testing.T) {
	tests := []struct {
		name    string
		section string
		want    string
	}{
		{"single segment", "behavior", "Behavior"},
		{"last of two", "notify.slack", "Slack"},
		{"last of three", "notify.slack.channel", "Channel"},
		{"already capitalized", "Ledger", "Ledger"},
		{"single char", "a", "A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sectionName(tt.section)
			if got != tt.want {
				t.Errorf("sectionName(%q) = %q, want %q", tt.section, got, tt.want)
			}
		})
	}
}

func TestSectionNameEmpty(t *testing.T) {
	// A trailing dot produces an empty last segment.
	got := sectionName("")
	if got != "" {
		t.Errorf("sectionName(%q) = %q, want empty string", "", got)
	}
}

// ///////////////////////////////////////////////
// injectOmitted Tests
// ///////////////////////////////////////////////

func TestInjectOmittedNoSection(t *testing.T) {
	// When sectionStack is empty, injectOmitted should be a no-op.
	var out []string
	emitted := map[string]bool{}
	injectOmitted(&out, config.ConfigDocs, nil, emitted)
	if len(out) != 0 {
		t.Errorf("injectOmitted with nil sectionStack produced %d lines, want 0", len(out))
	}
}

func TestInjectOmittedAddsMissingKeys(t *testing.T) {
	docs := map[string]config.FieldDoc{
		"metrics.listen":    {Comment: "listen here", Alternatives: []string{`listen = ":9464"`}},
		"metrics.other.key": {Comment: "nested, skipped"},
	}
	var out []string
	injectOmitted(&out, docs, []string{"metrics"}, map[string]bool{})

	want := []string{"", "# listen here", `# listen = ":9464"`}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("out = %q, want %q", out, want)
	}
}

// ///////////////////////////////////////////////
// render Tests
// ///////////////////////////////////////////////

func TestRenderRoundTrips(t *testing.T) {
	text, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	got := &config.Config{}
	if _, err := toml.Decode(text, got); err != nil {
		t.Fatalf("decode rendered config: %v\n%s", err, text)
	}
	if !reflect.DeepEqual(got, config.DefaultConfig()) {
		t.Errorf("rendered config decodes to %+v, want defaults", got)
	}
}

func TestRenderAnnotates(t *testing.T) {
	text, err := render(config.ExampleConfig(), config.ConfigDocs)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{
		"# Clockcord Configuration",
		"# ///// Behavior /////",
		"# ///// Slack /////",
		"[notify.slack]",
		`# timezone = "UTC"`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("rendered config missing %q", want)
		}
	}
	if strings.Contains(text, "[notify]\n") {
		t.Error("parent-only [notify] table should be folded into [notify.slack]")
	}
}

func TestCommittedDefaultIsCurrent(t *testing.T) {
	committed, err := os.ReadFile("../../config.default.toml")
	if err != nil {
		t.Skipf("config.default.toml not found: %v", err)
	}
	got := &config.Config{}
	if _, err := toml.Decode(string(committed), got); err != nil {
		t.Fatalf("decode committed default: %v", err)
	}
	if !reflect.DeepEqual(got, config.DefaultConfig()) {
		t.Error("config.default.toml is stale, run go generate ./internal/config")
	}
}
