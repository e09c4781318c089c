// Package authcmder provides the auth command for storing API credentials.
package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/streampump/pkg/cliui"
	"github.com/papercomputeco/streampump/pkg/credentials"
)

const authLongDesc string = `Store API credentials for upstream dialects.

Credentials are stored in credentials.toml in the .streampump/ directory and
used by "streampump chat" when the vendor's environment variable is not set.

Supported dialects: anthropic, gemini, openai

Examples:
  streampump auth openai              Prompt for an OpenAI API key
  streampump auth gemini              Prompt for a Gemini API key
  streampump auth --list              List stored credentials
  streampump auth --remove openai     Remove stored OpenAI credentials
  echo $KEY | streampump auth openai  Pipe API key from stdin`

const authShortDesc string = "Store API credentials for upstream dialects"

func NewAuthCmd() *cobra.Command {
	var listFlag bool
	var removeFlag string

	cmd := &cobra.Command{
		Use:   "auth [dialect]",
		Short: authShortDesc,
		Long:  authLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			out := cmd.OutOrStdout()

			switch {
			case listFlag:
				return runList(out, configDir)
			case removeFlag != "":
				return runRemove(out, removeFlag, configDir)
			default:
				if len(args) == 0 {
					return fmt.Errorf("dialect argument required\n\nSupported dialects: %s",
						strings.Join(credentials.SupportedDialects(), ", "))
				}
				return runAuth(out, cmd.InOrStdin(), args[0], configDir)
			}
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return credentials.SupportedDialects(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	cmd.Flags().BoolVar(&listFlag, "list", false, "List stored credentials")
	cmd.Flags().StringVar(&removeFlag, "remove", "", "Remove stored credentials for a dialect")

	return cmd
}

func runAuth(out io.Writer, in io.Reader, dialect, configDir string) error {
	dialect = strings.ToLower(strings.TrimSpace(dialect))

	if !credentials.IsSupportedDialect(dialect) {
		return fmt.Errorf("unsupported dialect: %q\n\nSupported dialects: %s",
			dialect, strings.Join(credentials.SupportedDialects(), ", "))
	}

	apiKey, err := readAPIKey(out, in, dialect)
	if err != nil {
		return err
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("API key cannot be empty")
	}

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.SetKey(dialect, apiKey); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Stored %s credentials %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(dialect),
		cliui.DimStyle.Render("("+credentials.EnvVarForDialect(dialect)+" takes precedence)"),
	)
	return nil
}

func runList(out io.Writer, configDir string) error {
	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	dialects, err := mgr.ListDialects()
	if err != nil {
		return err
	}

	if len(dialects) == 0 {
		fmt.Fprintf(out, "\n  %s No stored credentials.\n", cliui.DimStyle.Render("●"))
		fmt.Fprintf(out, "  Use 'streampump auth <dialect>' to store credentials.\n")
		fmt.Fprintf(out, "  Supported dialects: %s\n\n", strings.Join(credentials.SupportedDialects(), ", "))
		return nil
	}

	fmt.Fprintf(out, "\n  %s\n\n", cliui.HeaderStyle.Render("Stored credentials"))
	for _, d := range dialects {
		fmt.Fprintf(out, "  %s  %s  %s\n",
			cliui.SuccessMark,
			cliui.NameStyle.Render(d),
			cliui.DimStyle.Render("overridden by "+credentials.EnvVarForDialect(d)),
		)
	}
	fmt.Fprintln(out)

	return nil
}

func runRemove(out io.Writer, dialect, configDir string) error {
	dialect = strings.ToLower(strings.TrimSpace(dialect))

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.RemoveKey(dialect); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Removed %s credentials.\n\n", cliui.SuccessMark, cliui.NameStyle.Render(dialect))

	return nil
}

// readAPIKey reads an API key from the input. A terminal gets an interactive
// prompt with hidden input; anything else is read as a single line.
func readAPIKey(out io.Writer, in io.Reader, dialect string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(out, "Enter API key for %s (%s): ", dialect, credentials.EnvVarForDialect(dialect))

		keyBytes, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out) // newline after hidden input
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return string(keyBytes), nil
	}

	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return "", errors.New("no input received on stdin")
}
