// Package streampumpcmder is the root streampump command.
package streampumpcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/streampump/cmd/streampump/auth"
	chatcmder "github.com/papercomputeco/streampump/cmd/streampump/chat"
	configcmder "github.com/papercomputeco/streampump/cmd/streampump/config"
	initcmder "github.com/papercomputeco/streampump/cmd/streampump/init"
	servecmder "github.com/papercomputeco/streampump/cmd/streampump/serve"
	versioncmder "github.com/papercomputeco/streampump/cmd/version"
)

const streampumpLongDesc string = `streampump translates chat generation requests into vendor dialects
(Anthropic, Gemini, Ollama, OpenAI) and streams the replies back as one
normalized event stream, retrying transient upstream failures on the way.

Get started with:
  streampump init      Create a local .streampump/ directory
  streampump serve     Run the generation server
  streampump chat      Chat through a running server`

const streampumpShortDesc string = "streampump - streaming chat generation pump"

func NewStreamPumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streampump",
		Short: streampumpShortDesc,
		Long:  streampumpLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .streampump/ directory")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
