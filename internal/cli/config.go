package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/tessro/encore/internal/config"
	encerr "github.com/tessro/encore/internal/errors"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Commands for viewing and editing encore configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration values, including environment overrides.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long:  `Open the configuration file in your default editor.`,
	RunE:  runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long:  `Create a new configuration file with default values.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration and data paths",
	RunE:  runConfigPath,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Common keys:
  remote.base_url        History service URL (empty keeps history local)
  remote.timeout         History service timeout in milliseconds
  audio.base_url         Audio server URL
  audio.grace_delay      Milliseconds between releasing and acquiring audio
  store.backend          Local store: file, sqlite, redis, memory
  history.local_cap      Songs kept in the local list
  history.remote_cap     Songs kept by the history service
  library.path           Library file used by 'encore ui'
  log.level              debug, info, warn, error

Examples:
  encore config set remote.base_url http://localhost:3000
  encore config set history.local_cap 10`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

// Config keys whose values are not strings.
var (
	intKeys = map[string]bool{
		"remote.timeout":         true,
		"audio.grace_delay":      true,
		"audio.tick_interval":    true,
		"audio.bitrate_kbps":     true,
		"store.redis_db":         true,
		"history.local_cap":      true,
		"history.remote_cap":     true,
		"identity.poll_interval": true,
		"server.rate_burst":      true,
		"tail.interval":          true,
		"tui.refresh_interval":   true,
	}
	floatKeys = map[string]bool{
		"server.rate_limit": true,
	}
	boolKeys = map[string]bool{
		"tail.emoji": true,
	}
)

const configHeader = "# Encore Configuration\n# https://github.com/tessro/encore\n\n"

func runConfigShow(cmd *cobra.Command, args []string) error {
	if JSONOutput() {
		return writeJSON(cmd.OutOrStdout(), cfg)
	}

	encoder := toml.NewEncoder(cmd.OutOrStdout())
	encoder.Indent = "  "
	return encoder.Encode(cfg)
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("%w at %s", encerr.ErrConfigNotFound, configPath)
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		for _, e := range []string{"nano", "vim", "vi", "notepad"} {
			if _, err := exec.LookPath(e); err == nil {
				editor = e
				break
			}
		}
	}
	if editor == "" {
		return fmt.Errorf("no editor found. Set EDITOR environment variable")
	}

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	return editorCmd.Run()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := writeConfigFile(configPath, config.Default()); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if JSONOutput() {
		return writeJSON(out, map[string]string{
			"status": "created",
			"path":   configPath,
		})
	}
	fmt.Fprintf(out, "Created config file: %s\n", configPath)
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Point audio.base_url at your audio server")
	fmt.Fprintln(out, "  2. Set remote.base_url to sync history, or run 'encore serve'")
	fmt.Fprintln(out, "  3. Run 'encore identity login <user>' to sign in")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	paths := map[string]string{
		"config": getConfigPath(),
		"data":   config.DataDir(),
	}
	if src, err := identityFile(); err == nil {
		paths["identity"] = src.Path()
	}
	if cfg.Library.Path != "" {
		paths["library"] = cfg.Library.Path
	}

	if JSONOutput() {
		return writeJSON(cmd.OutOrStdout(), paths)
	}
	t := NewTableWriter(cmd.OutOrStdout())
	for _, k := range []string{"config", "data", "identity", "library"} {
		if v, ok := paths[k]; ok {
			t.Row(k, v)
		}
	}
	t.Flush()
	return nil
}

func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	configPath := getConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("%w at %s", encerr.ErrConfigNotFound, configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	rawConfig := make(map[string]interface{})
	if _, err := toml.Decode(string(data), &rawConfig); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return fmt.Errorf("invalid key format. Use 'section.key' (e.g., remote.base_url)")
	}
	section, field := parts[0], parts[1]

	sectionMap, ok := rawConfig[section].(map[string]interface{})
	if !ok {
		sectionMap = make(map[string]interface{})
		rawConfig[section] = sectionMap
	}

	typedValue, err := parseConfigValue(key, value)
	if err != nil {
		return err
	}
	sectionMap[field] = typedValue

	// Make sure the result still loads before replacing the file.
	var check config.Config
	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(rawConfig); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if _, err := toml.Decode(buf.String(), &check); err != nil {
		return fmt.Errorf("%w: %s: %v", encerr.ErrInvalidConfig, key, err)
	}
	check.ApplyDefaults()
	if err := check.Validate(); err != nil {
		return fmt.Errorf("%w: %w", encerr.ErrInvalidConfig, err)
	}

	if err := writeConfigFile(configPath, rawConfig); err != nil {
		return err
	}

	if JSONOutput() {
		return writeJSON(cmd.OutOrStdout(), map[string]string{
			"status": "updated",
			"key":    key,
			"value":  value,
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
	return nil
}

func parseConfigValue(key, value string) (interface{}, error) {
	switch {
	case intKeys[key]:
		i, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("value must be an integer for %s", key)
		}
		return i, nil
	case floatKeys[key]:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("value must be a number for %s", key)
		}
		return f, nil
	case boolKeys[key]:
		return value == "true" || value == "1" || value == "yes", nil
	default:
		return value, nil
	}
}

func writeConfigFile(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	_, _ = f.WriteString(configHeader)

	encoder := toml.NewEncoder(f)
	encoder.Indent = "  "
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
