package amend

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jj-spr/jj-spr/internal/common"
	"github.com/jj-spr/jj-spr/internal/jj"
	"github.com/jj-spr/jj-spr/internal/land"
	"github.com/jj-spr/jj-spr/internal/message"
	"github.com/jj-spr/jj-spr/internal/ui"
)

// Command copies a pull request's message back into the local commit
type Command struct {
	// Flags
	Revision string // Revision to amend, defaults to the current checkout

	Clients *common.Clients
}

// Register registers the command with cobra
func (c *Command) Register(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "amend",
		Short: "Update the commit message from the pull request",
		Long: `Copy the pull request's title and description back into the local
commit message.

Useful after editing the pull request on GitHub, so the landed commit and
the local commit agree on the final message.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			c.Clients, err = common.InitClients(cmd.Context())
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&c.Revision, "revision", "r", "", "Revision to amend (defaults to @)")

	parent.AddCommand(cmd)
}

// Run executes the command
func (c *Command) Run(ctx context.Context) error {
	vcs := c.Clients.JJ

	revision := c.Revision
	if revision == "" {
		revision = "@"
	}

	commit, err := vcs.GetPreparedCommit(ctx, c.Clients.Config, revision)
	if err != nil {
		return err
	}
	ui.CommitTitle(commit)

	if commit.PullRequestNumber == 0 {
		return land.ErrNoPullRequest
	}

	pr, err := c.Clients.GitHub.GetPullRequest(ctx, commit.PullRequestNumber)
	if err != nil {
		return err
	}

	// The PullRequest link stays as the local commit has it; everything
	// else follows the pull request.
	for section, text := range pr.Sections {
		if section == message.SectionPullRequest {
			continue
		}
		commit.SetSection(section, text)
	}

	if !commit.MessageChanged {
		ui.Info("Commit message already matches the pull request.")
		return nil
	}
	if err := vcs.RewriteMessages(ctx, []*jj.PreparedCommit{commit}); err != nil {
		return err
	}
	ui.Success("Commit message updated from the pull request")
	return nil
}
