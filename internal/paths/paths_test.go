package paths

import (
	"path/filepath"
	"testing"
)

// ///////////////////////////////////////////////
// Constant Value Tests
// ///////////////////////////////////////////////

func TestConstantValues(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DataDirRel", DataDirRel, ".clockcord"},
		{"PIDFile", PIDFile, "clockcord.pid"},
		{"ConfigFile", ConfigFile, "config.toml"},
		{"LogFile", LogFile, "clockcord.log"},
		{"LedgerFile", LedgerFile, "ledger.json"},
		{"BinaryName", BinaryName, "clockcord"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// DataDir Method Tests
// ///////////////////////////////////////////////

func TestDataDirMethods(t *testing.T) {
	root := filepath.Join("home", "user", ".clockcord")
	d := DataDir{Root: root}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"PID", d.PID(), filepath.Join(root, "clockcord.pid")},
		{"Config", d.Config(), filepath.Join(root, "config.toml")},
		{"Log", d.Log(), filepath.Join(root, "clockcord.log")},
		{"Ledger default", d.Ledger(""), filepath.Join(root, "ledger.json")},
		{"Ledger relative", d.Ledger("team.json"), filepath.Join(root, "team.json")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestLedgerAbsolutePath(t *testing.T) {
	abs, err := filepath.Abs(filepath.Join("var", "lib", "ledger.json"))
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	d := DataDir{Root: "somewhere"}
	if got := d.Ledger(abs); got != abs {
		t.Errorf("Ledger(%q) = %q, want unchanged", abs, got)
	}
}
