package main

import (
	"os"
	"path/filepath"
	"testing"
)

// resetFlags restores global flag state after each test.
func resetFlags(t *testing.T) {
	t.Helper()
	orig := struct{ url, actor, role, fmt, db, profile string }{flagURL, flagActor, flagRole, flagFmt, flagDB, flagProfile}
	t.Cleanup(func() {
		flagURL = orig.url
		flagActor = orig.actor
		flagRole = orig.role
		flagFmt = orig.fmt
		flagDB = orig.db
		flagProfile = orig.profile
	})
	flagURL = defaultURL
	flagActor = ""
	flagRole = ""
	flagDB = ""
	flagProfile = ""
}

// isolateEnv clears every variable resolveConfig reads and points HOME at a
// temp dir. It returns that dir.
func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"LEDGER_URL", "LEDGER_ACTOR", "LEDGER_ACTOR_ROLE", "LEDGER_DATABASE_URL"} {
		t.Setenv(k, "")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeConfigFile(t *testing.T, home, content string) {
	t.Helper()
	dir := filepath.Join(home, ".ledger")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

const profilesYAML = `
active_profile: staging
profiles:
  default:
    url: http://default:3040
    actor_id: ops-bot
  staging:
    url: http://staging:4040
    actor_id: auditor-7
    actor_role: auditor
    database_url: postgres://staging/ledger
`

func TestResolveConfigEnv(t *testing.T) {
	resetFlags(t)
	isolateEnv(t)
	t.Setenv("LEDGER_URL", "http://env-server:9090")
	t.Setenv("LEDGER_ACTOR", "env-actor")
	t.Setenv("LEDGER_DATABASE_URL", "postgres://env/ledger")

	resolveConfig()

	if flagURL != "http://env-server:9090" {
		t.Errorf("flagURL: got %q", flagURL)
	}
	if flagActor != "env-actor" {
		t.Errorf("flagActor: got %q", flagActor)
	}
	if flagDB != "postgres://env/ledger" {
		t.Errorf("flagDB: got %q", flagDB)
	}
}

// TestResolveConfigFlagTakesPrecedenceOverEnv verifies that an explicit flag
// value is not overridden by the environment variable.
func TestResolveConfigFlagTakesPrecedenceOverEnv(t *testing.T) {
	resetFlags(t)
	isolateEnv(t)
	t.Setenv("LEDGER_URL", "http://env-server:9090")
	t.Setenv("LEDGER_DATABASE_URL", "postgres://env/ledger")

	flagURL = "http://explicit-flag:1234"
	flagDB = "postgres://flag/ledger"
	resolveConfig()

	if flagURL != "http://explicit-flag:1234" {
		t.Errorf("explicit flag should win; got %q", flagURL)
	}
	if flagDB != "postgres://flag/ledger" {
		t.Errorf("explicit database flag should win; got %q", flagDB)
	}
}

func TestResolveConfigActiveProfile(t *testing.T) {
	resetFlags(t)
	home := isolateEnv(t)
	writeConfigFile(t, home, profilesYAML)

	resolveConfig()

	if flagURL != "http://staging:4040" {
		t.Errorf("flagURL from profile: got %q", flagURL)
	}
	if flagActor != "auditor-7" || flagRole != "auditor" {
		t.Errorf("actor from profile: got %q/%q", flagActor, flagRole)
	}
	if flagDB != "postgres://staging/ledger" {
		t.Errorf("flagDB from profile: got %q", flagDB)
	}
}

func TestResolveConfigNamedProfile(t *testing.T) {
	resetFlags(t)
	home := isolateEnv(t)
	writeConfigFile(t, home, profilesYAML)

	flagProfile = "default"
	resolveConfig()

	if flagURL != "http://default:3040" || flagActor != "ops-bot" {
		t.Errorf("got url=%q actor=%q", flagURL, flagActor)
	}
	if flagDB != "" {
		t.Errorf("default profile has no database_url; got %q", flagDB)
	}
}

func TestResolveConfigEnvBeatsFile(t *testing.T) {
	resetFlags(t)
	home := isolateEnv(t)
	writeConfigFile(t, home, profilesYAML)
	t.Setenv("LEDGER_ACTOR", "env-actor")

	resolveConfig()

	if flagActor != "env-actor" {
		t.Errorf("env should beat config file; got %q", flagActor)
	}
	if flagURL != "http://staging:4040" {
		t.Errorf("unset values still come from the file; got %q", flagURL)
	}
}

func TestResolveConfigMissingOrInvalidFile(t *testing.T) {
	resetFlags(t)
	home := isolateEnv(t)

	resolveConfig()
	if flagURL != defaultURL {
		t.Errorf("no config file: got %q", flagURL)
	}

	writeConfigFile(t, home, "profiles: [not, a, map")
	resolveConfig()
	if flagURL != defaultURL {
		t.Errorf("invalid config file should be ignored: got %q", flagURL)
	}
}
