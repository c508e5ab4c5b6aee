package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/jj-spr/jj-spr/cmd/amend"
	"github.com/jj-spr/jj-spr/cmd/close"
	"github.com/jj-spr/jj-spr/cmd/diff"
	"github.com/jj-spr/jj-spr/cmd/format"
	"github.com/jj-spr/jj-spr/cmd/land"
	"github.com/jj-spr/jj-spr/cmd/list"
	"github.com/jj-spr/jj-spr/cmd/patch"
	"github.com/jj-spr/jj-spr/internal/errs"
	"github.com/jj-spr/jj-spr/internal/ui"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "jj-spr",
	Short: "Submit and land pull requests for individual, amendable, rebaseable commits",
	Long: `jj-spr manages one GitHub pull request per local commit.

Each commit's message carries its pull request link, so commits can be
amended, reordered, and rebased freely between submissions. 'jj-spr diff'
creates or updates the pull request for a commit, and 'jj-spr land' merges
an approved pull request into the integration branch.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		for _, msg := range errs.Convert(err).Messages() {
			ui.Error(msg)
		}
		os.Exit(1)
	}
}

func init() {
	// Register all commands
	commands := []Command{
		&diff.Command{},
		&land.Command{},
		&amend.Command{},
		&format.Command{},
		&list.Command{},
		&patch.Command{},
		&close.Command{},
	}

	for _, cmd := range commands {
		cmd.Register(rootCmd)
	}
}
