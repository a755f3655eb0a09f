package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentineleof/eof/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify eof configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/eof/config.yaml
Project-specific overrides can be placed in .eof.yaml
Environment variables use the EOF_ prefix (EOF_SAVE_DIR, EOF_HTTP_TIMEOUT);
SCIHUB_USER and SCIHUB_PASSWORD are also read.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	if len(args) == 2 {
		// Only the user file is rewritten; flags, project overrides and
		// environment values stay out of it.
		user, err := config.LoadUser()
		if err != nil {
			return fmt.Errorf("load user config: %w", err)
		}
		return setConfigKey(user, args[0], args[1])
	}

	// Effective values without flag overrides.
	loaded, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(args) == 1 {
		return displayConfigKey(loaded, args[0])
	}
	return displayAllConfig(loaded)
}

// displayAllConfig prints all configuration values.
func displayAllConfig(c *config.Config) error {
	for _, key := range config.Keys() {
		value, err := config.Get(c, key)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", key, value)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("user config:    " + config.GetUserConfigPath()))
	if p := config.GetProjectConfigPath(); p != "" {
		fmt.Println(dimStyle.Render("project config: " + p))
	}
	fmt.Println(dimStyle.Render("credentials:    " + string(config.GetCredentialSource(c))))
	return nil
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(c *config.Config, key string) error {
	value, err := config.Get(c, key)
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(c *config.Config, key, value string) error {
	if err := config.Set(c, key, value); err != nil {
		return err
	}
	if err := config.Save(c); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	shown, _ := config.Get(c, key)
	fmt.Printf("Set %s = %s\n", key, shown)
	return nil
}
