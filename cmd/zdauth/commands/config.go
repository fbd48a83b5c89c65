package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/zdauth/internal/app"
)

// envPrefix is stripped from environment variables during config loading
// (e.g. ZENDESK_SUBDOMAIN → subdomain, ZENDESK_AUTH__STORAGE → auth.storage)
const envPrefix = "ZENDESK_"

// loadConfig loads application configuration from various sources with precedence:
// config file → environment variables → CLI flags → defaults
func loadConfig(configPath string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	k := koanf.New(".")

	// 1. Load from config file if present
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
		}
	}

	// 2. Load from environment variables
	envProvider := env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			stripped := strings.TrimPrefix(key, envPrefix)
			nested := strings.ToLower(strings.ReplaceAll(stripped, "__", "."))
			return nested, value
		},
		EnvironFunc: environFunc,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	// 3. Load from CLI flags if provided
	if cmd != nil {
		flagValues := extractAndTransformFlags(cmd)
		if err := k.Load(confmap.Provider(flagValues, "."), nil); err != nil {
			return nil, fmt.Errorf("loading CLI flags: %w", err)
		}
	}

	config := &app.Config{}
	if err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// extractAndTransformFlags transforms CLI flag names to match config structure.
// Includes parent flags. Examples: --auth--storage → auth.storage, --log-level → log_level
func extractAndTransformFlags(cmd *cli.Command) map[string]any {
	values := make(map[string]any)

	// FlagNames() includes flags from parent commands (via lineage)
	for _, name := range cmd.FlagNames() {
		// Skip unset flags to preserve precedence from earlier config sources
		if !cmd.IsSet(name) {
			continue
		}

		if value := cmd.Value(name); value != nil {
			key := strings.ReplaceAll(name, "--", ".")
			key = strings.ReplaceAll(key, "-", "_")
			values[key] = value
		}
	}

	return values
}

// resolveConfigPath returns the explicit path when given, else the default
// location under the user config directory.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, "zdauth", "config.toml")
}

// saveConfigValues merges the given flat keys into the config file, preserving
// other settings, and rewrites it with owner-only permissions.
func saveConfigValues(configPath string, values map[string]any) error {
	if configPath == "" {
		return fmt.Errorf("no config path available")
	}

	k := koanf.New(".")
	if _, err := os.Stat(configPath); err == nil {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return fmt.Errorf("loading config file: %w", err)
		}
	}
	if err := k.Load(confmap.Provider(values, "."), nil); err != nil {
		return fmt.Errorf("merging config values: %w", err)
	}

	return writeConfig(configPath, k)
}

// deleteConfigValues removes the given keys from the config file. Reports
// whether any key was present.
func deleteConfigValues(configPath string, keys ...string) (bool, error) {
	if configPath == "" {
		return false, nil
	}
	if _, err := os.Stat(configPath); err != nil {
		return false, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
		return false, fmt.Errorf("loading config file: %w", err)
	}

	removed := false
	for _, key := range keys {
		if k.Exists(key) {
			k.Delete(key)
			removed = true
		}
	}
	if !removed {
		return false, nil
	}

	return true, writeConfig(configPath, k)
}

func writeConfig(configPath string, k *koanf.Koanf) error {
	data, err := k.Marshal(toml.Parser())
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	// WriteFile doesn't change the mode of a pre-existing file.
	return os.Chmod(configPath, 0600)
}
