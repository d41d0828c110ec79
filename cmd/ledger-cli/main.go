// Command ledger-cli queries, verifies and anchors the audit ledger.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/persistorai/ledger/client"
)

// Build-time variables set via ldflags.
var (
	version   = "0.1.0"
	commit    = ""
	buildDate = ""
)

const defaultURL = "http://localhost:3040"

var (
	apiClient   *client.Client
	flagURL     string
	flagActor   string
	flagRole    string
	flagFmt     string
	flagDB      string
	flagProfile string
)

func versionString() string {
	if commit != "" && buildDate != "" {
		return fmt.Sprintf("ledger-cli version %s (commit: %s, built: %s)", version, commit, buildDate)
	}
	return fmt.Sprintf("ledger-cli version %s-dev", version)
}

type configFile struct {
	Profiles      map[string]configProfile `yaml:"profiles"`
	ActiveProfile string                   `yaml:"active_profile"`
}

type configProfile struct {
	URL         string `yaml:"url"`
	ActorID     string `yaml:"actor_id"`
	ActorRole   string `yaml:"actor_role"`
	DatabaseURL string `yaml:"database_url"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "ledger-cli",
		Short:   "Audit ledger CLI",
		Version: versionString(),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			resolveConfig()
			var opts []client.Option
			if flagActor != "" {
				opts = append(opts, client.WithActor(flagActor, flagRole))
			}
			apiClient = client.New(flagURL, opts...)
		},
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagURL, "url", defaultURL, "Ledger server URL (env: LEDGER_URL)")
	pf.StringVar(&flagActor, "actor", "", "Actor ID sent with writes (env: LEDGER_ACTOR)")
	pf.StringVar(&flagRole, "role", "", "Actor role sent with writes (env: LEDGER_ACTOR_ROLE)")
	pf.StringVar(&flagFmt, "format", "json", "Output format: json|table|quiet")
	pf.StringVar(&flagProfile, "profile", "", "Config profile (default: active_profile)")

	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newAppendCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newIntegrityCmd())
	rootCmd.AddCommand(newCheckpointCmd())
	rootCmd.AddCommand(newRootsCmd())
	rootCmd.AddCommand(newVerifyRootCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newDBCmd())

	return rootCmd
}

// resolveConfig fills unset settings. Flags take precedence, then env, then
// the config file.
func resolveConfig() {
	if flagURL == defaultURL {
		if v := os.Getenv("LEDGER_URL"); v != "" {
			flagURL = v
		}
	}
	if flagActor == "" {
		flagActor = os.Getenv("LEDGER_ACTOR")
	}
	if flagRole == "" {
		flagRole = os.Getenv("LEDGER_ACTOR_ROLE")
	}
	if flagDB == "" {
		flagDB = os.Getenv("LEDGER_DATABASE_URL")
	}

	p, ok := loadProfile(flagProfile)
	if !ok {
		return
	}
	if flagURL == defaultURL && p.URL != "" {
		flagURL = p.URL
	}
	if flagActor == "" {
		flagActor = p.ActorID
	}
	if flagRole == "" {
		flagRole = p.ActorRole
	}
	if flagDB == "" {
		flagDB = p.DatabaseURL
	}
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ledger", "config.yaml"), nil
}

// loadProfile reads the named profile, or the active one when name is empty.
func loadProfile(name string) (configProfile, bool) {
	cfgPath, err := configPath()
	if err != nil {
		return configProfile{}, false
	}
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return configProfile{}, false
	}
	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return configProfile{}, false
	}
	if name == "" {
		name = cfg.ActiveProfile
	}
	if name == "" {
		name = "default"
	}
	p, ok := cfg.Profiles[name]
	return p, ok
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	os.Exit(1)
}
