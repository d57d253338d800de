package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for contentsync.

Bash:
  $ source <(contentsync completion bash)

Zsh:
  $ contentsync completion zsh > "${fpath[1]}/_contentsync"

Fish:
  $ contentsync completion fish > ~/.config/fish/completions/contentsync.fish

PowerShell:
  PS> contentsync completion powershell | Out-String | Invoke-Expression
`,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	DisableFlagsInUseLine: true,
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		switch args[0] {
		case "bash":
			err = rootCmd.GenBashCompletionV2(os.Stdout, true)
		case "zsh":
			err = rootCmd.GenZshCompletion(os.Stdout)
		case "fish":
			err = rootCmd.GenFishCompletion(os.Stdout, true)
		case "powershell":
			err = rootCmd.GenPowerShellCompletionWithDesc(os.Stdout)
		}
		if err != nil {
			exitError("failed to generate completion: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
