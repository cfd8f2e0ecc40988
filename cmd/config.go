package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	kenv "github.com/knadh/koanf/providers/env"
	kfile "github.com/knadh/koanf/providers/file"
	kposflag "github.com/knadh/koanf/providers/posflag"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"smtpvoid/server"
)

// envPrefix namespaces environment overrides; "__" separates nested keys,
// e.g. SMTPVOID_DATABASE__URL.
const envPrefix = "SMTPVOID_"

// flagKeys maps CLI flag names to config keys. --mysql is kept as an alias
// of --database-url.
var flagKeys = map[string]string{
	"bind":                      "bind",
	"domain":                    "domain",
	"max-message-size":          "max_message_size",
	"mysql":                     "database.url",
	"database-url":              "database.url",
	"database-driver":           "database.driver",
	"auto-migrate":              "database.auto_migrate",
	"metrics-address":           "metrics_address",
	"idle-timeout":              "idle_timeout",
	"case-insensitive-commands": "case_insensitive_commands",
	"report-storage-errors":     "report_storage_errors",
	"log-level":                 "log.level",
	"log-format":                "log.format",
	"log-output":                "log.output",
}

// loadConfig layers the config file, SMTPVOID_* environment variables and
// explicitly set flags, in increasing priority, then applies defaults.
func loadConfig(cmd *cobra.Command) (*server.Config, error) {
	k := koanf.New(".")
	flags := cmd.Flags()

	cfgPath, _ := flags.GetString("config")
	if cfgPath == "" {
		cfgPath = findConfigFile()
	}
	if cfgPath != "" {
		if err := k.Load(kfile.Provider(cfgPath), kyaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", cfgPath, err)
		}
	}

	if err := k.Load(kenv.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	if err := k.Load(kposflag.ProviderWithValue(flags, ".", k, flagKey(flags)), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg server.Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.EnsureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// flagKey renames flags to config keys. Flags the user didn't set are
// dropped so their defaults never shadow the file or the environment.
func flagKey(flags *pflag.FlagSet) func(string, string) (string, interface{}) {
	return func(name, value string) (string, interface{}) {
		key, ok := flagKeys[name]
		if !ok {
			return "", nil
		}
		if f := flags.Lookup(name); f == nil || !f.Changed {
			return "", nil
		}
		return key, value
	}
}

func envKey(name string) string {
	name = strings.TrimPrefix(name, envPrefix)
	return strings.ReplaceAll(strings.ToLower(name), "__", ".")
}

// findConfigFile returns the first smtpvoid.{yaml,yml,json} found in the
// search paths, or "" when there is none.
func findConfigFile() string {
	for _, dir := range getConfigSearchPaths() {
		for _, ext := range []string{"yaml", "yml", "json"} {
			path := filepath.Join(dir, "smtpvoid."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// getConfigSearchPaths returns the directories to search for config files, in order of precedence.
// The order is: current directory, $HOME/.smtpvoid/, /etc/smtpvoid/
func getConfigSearchPaths() []string {
	paths := []string{"."}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".smtpvoid"))
	}
	return append(paths, "/etc/smtpvoid")
}
