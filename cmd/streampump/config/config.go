// Package configcmder provides the config command for managing persistent
// streampump configuration stored in the .streampump/ directory.
package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/streampump/pkg/cliui"
	"github.com/papercomputeco/streampump/pkg/config"
)

const configLongDesc string = `Manage persistent streampump configuration.

Configuration is stored as config.toml in the .streampump/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  server.listen, server.request_timeout,
  upstream.openai, upstream.anthropic, upstream.gemini, upstream.ollama,
  telemetry.kafka_brokers, telemetry.kafka_topic,
  log.file,
  client.server_target, client.dialect, client.model

Use subcommands to get, set, or list configuration values:
  streampump config set <key> <value>    Set a configuration value
  streampump config get <key>            Get a configuration value
  streampump config list                 List all configuration values

Examples:
  streampump config set client.dialect anthropic
  streampump config set upstream.ollama http://gpu-box:11434
  streampump config get client.model
  streampump config list`

const configShortDesc string = "Manage persistent streampump configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// printTarget prints which config file the subcommand operates on.
func printTarget(cfger *config.Configer) {
	target := cfger.GetTarget()
	if target == "" {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
		return
	}

	fmt.Printf("\n  %s %s\n\n",
		cliui.KeyStyle.Render("Config file:"),
		cliui.DimStyle.Render(target),
	)
}
