// Package initcmder provides the init command for initializing a local
// .streampump directory in the current working directory.
package initcmder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/streampump/pkg/cliui"
	"github.com/papercomputeco/streampump/pkg/config"
)

const (
	dirName = ".streampump"
)

const initLongDesc string = `Initialize a new .streampump/ directory in the current working directory.

Creates a local .streampump/ directory that takes precedence over the default
~/.streampump/ directory for configuration and saved chat conversations, and
writes a config.toml with default values.

Use --preset to preconfigure the chat client for a vendor.

Examples:
  streampump init
  streampump init --preset anthropic`

const initShortDesc string = "Initialize a local .streampump/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "",
		fmt.Sprintf("Client preset (%s)", strings.Join(config.ValidPresetNames(), ", ")))

	return cmd
}

func runInit(cmd *cobra.Command, preset string) error {
	cfg := config.NewDefaultConfig()
	if preset != "" {
		var err error
		cfg, err = config.PresetConfig(preset)
		if err != nil {
			return err
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}
	dir := filepath.Join(cwd, dirName)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)

	err = cliui.Step(out, "Creating "+dir, func() error {
		return os.MkdirAll(dir, 0o755)
	})
	if err != nil {
		return fmt.Errorf("creating .streampump directory: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfger.GetTarget()); err == nil {
		fmt.Fprintf(out, "  %s %s\n\n", cliui.DimStyle.Render("Keeping existing"), cfger.GetTarget())
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config: %w", err)
	}

	err = cliui.Step(out, "Writing "+cfger.GetTarget(), func() error {
		return cfger.SaveConfig(cfg)
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	return nil
}
