package command

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/adamavenir/vliz/internal/db"
	"github.com/adamavenir/vliz/internal/types"
	"github.com/spf13/cobra"
)

var configKeys = []string{"language", "theme", "sound", "channel"}

// NewConfigCmd creates the config command.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [key] [value]",
		Short: "Get or set preferences (language, theme, sound, channel)",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			values, err := preferenceValues(ctx.Store)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				if ctx.JSONMode {
					return json.NewEncoder(out).Encode(values)
				}
				fmt.Fprintln(out, "Configuration:")
				for _, key := range configKeys {
					fmt.Fprintf(out, "  %s: %s\n", key, values[key])
				}
				return nil
			}

			key := strings.ToLower(strings.TrimSpace(args[0]))
			if _, ok := values[key]; !ok {
				return writeCommandError(cmd, fmt.Errorf("unknown key %q (use %s)", key, strings.Join(configKeys, ", ")))
			}

			if len(args) == 1 {
				if ctx.JSONMode {
					return json.NewEncoder(out).Encode(map[string]string{key: values[key]})
				}
				fmt.Fprintln(out, values[key])
				return nil
			}

			if err := setPreference(ctx.Store, key, args[1]); err != nil {
				return writeCommandError(cmd, err)
			}
			values, err = preferenceValues(ctx.Store)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if ctx.JSONMode {
				return json.NewEncoder(out).Encode(map[string]string{key: values[key]})
			}
			fmt.Fprintf(out, "Set %s = %s\n", key, values[key])
			return nil
		},
	}

	return cmd
}

func preferenceValues(store db.Store) (map[string]string, error) {
	settings, err := db.LoadSettings(store)
	if err != nil {
		return nil, err
	}
	channel, err := db.LoadActiveChannel(store)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"language": settings.Language,
		"theme":    settings.Theme,
		"sound":    onOff(settings.SoundEnabled),
		"channel":  string(channel),
	}, nil
}

func setPreference(store db.Store, key, value string) error {
	value = strings.ToLower(strings.TrimSpace(value))
	switch key {
	case "language":
		if value != "en" && value != "es" {
			return fmt.Errorf("invalid language %q (use en or es)", value)
		}
		return db.SaveLanguage(store, value)
	case "theme":
		return db.SaveTheme(store, value)
	case "sound":
		enabled, err := parseOnOff(value)
		if err != nil {
			return err
		}
		return db.SaveSound(store, enabled)
	case "channel":
		channel := types.Channel(value)
		if !channel.Valid() {
			return fmt.Errorf("invalid channel %q (use support or public)", value)
		}
		return db.SaveActiveChannel(store, channel)
	}
	return fmt.Errorf("unknown key %q", key)
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}

func parseOnOff(value string) (bool, error) {
	switch value {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid sound value %q (use on or off)", value)
	}
	return enabled, nil
}
