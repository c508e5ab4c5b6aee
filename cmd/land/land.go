package land

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jj-spr/jj-spr/internal/common"
	"github.com/jj-spr/jj-spr/internal/land"
)

// Command lands the pull request of one commit
type Command struct {
	// Flags
	Revision   string // Revision to land, defaults to the current checkout
	CherryPick bool   // Land without requiring the parent to be on the stack

	Clients *common.Clients
}

// Register registers the command with cobra
func (c *Command) Register(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "land",
		Short: "Land a reviewed pull request",
		Long: `Squash-merge the pull request of a commit into the integration branch.

The commit must have been submitted with 'jj-spr diff' and, if approval is
required, approved on GitHub. The merge only happens if the pull request
still matches the local commit; otherwise run 'jj-spr diff' first.

Example:
  jj-spr land            # Land the current checkout
  jj-spr land -r xyz     # Land the commit at revision xyz`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			c.Clients, err = common.InitClients(cmd.Context())
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&c.Revision, "revision", "r", "", "Revision to land (defaults to @)")
	cmd.Flags().BoolVar(&c.CherryPick, "cherry-pick", false, "Land the commit's own change without requiring its parent to be landed")

	parent.AddCommand(cmd)
}

// Run executes the command
func (c *Command) Run(ctx context.Context) error {
	orchestrator := land.New(c.Clients.Config, c.Clients.GitHub, c.Clients.JJ)
	return orchestrator.Land(ctx, land.Options{
		Revision:   c.Revision,
		CherryPick: c.CherryPick,
	})
}
