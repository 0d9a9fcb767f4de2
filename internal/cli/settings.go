package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/watsumi/gentle-review/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read or change the stored extension settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendSettingsMessage(cmd, settings.Message{Type: settings.MessageGetSettings})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set key=value...",
	Short: "Merge values into the stored settings",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return usageError{fmt.Errorf("at least one key=value is required")}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := parseAssignments(args)
		if err != nil {
			return usageError{err}
		}
		raw, err := json.Marshal(patch)
		if err != nil {
			return err
		}
		return sendSettingsMessage(cmd, settings.Message{Type: settings.MessageUpdateSettings, Settings: raw})
	},
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

func sendSettingsMessage(cmd *cobra.Command, msg settings.Message) error {
	storage, closer, err := openStorage(cmd.Context(), cfg.Storage)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer()
	}

	resp, err := settings.NewRouter(settings.NewStore(storage)).Handle(cmd.Context(), msg)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	cmd.Println(string(data))
	return nil
}

// parseAssignments turns key=value pairs into a settings patch. Keys use
// the JSON field names.
func parseAssignments(args []string) (settings.Patch, error) {
	var p settings.Patch
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return p, fmt.Errorf("invalid assignment %q, want key=value", arg)
		}
		switch key {
		case "enabled":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return p, fmt.Errorf("enabled: %w", err)
			}
			p.Enabled = &b
		case "model":
			p.Model = &value
		case "temperature":
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return p, fmt.Errorf("temperature: %w", err)
			}
			p.Temperature = &f
		case "maxTokens":
			n, err := strconv.Atoi(value)
			if err != nil {
				return p, fmt.Errorf("maxTokens: %w", err)
			}
			p.MaxTokens = &n
		case "provider":
			prov := settings.Provider(value)
			switch prov {
			case settings.ProviderWebLLM, settings.ProviderOpenAI, settings.ProviderClaude:
			default:
				return p, fmt.Errorf("provider: unknown %q", value)
			}
			p.Provider = &prov
		default:
			return p, fmt.Errorf("unknown setting %q", key)
		}
	}
	return p, nil
}
