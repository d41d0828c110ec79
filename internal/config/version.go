package config

// Version is the ledgerd binary version.
// Set at build time via: -ldflags "-X github.com/persistorai/ledger/internal/config.Version=<tag>"
// Defaults to "dev" when built without ldflags.
var Version = "dev"
