package close

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jj-spr/jj-spr/internal/common"
	"github.com/jj-spr/jj-spr/internal/gh"
	"github.com/jj-spr/jj-spr/internal/jj"
	"github.com/jj-spr/jj-spr/internal/land"
	"github.com/jj-spr/jj-spr/internal/message"
	"github.com/jj-spr/jj-spr/internal/ui"
)

// Command closes the pull request of a commit
type Command struct {
	// Flags
	Revision string // Revision whose pull request to close

	Clients *common.Clients
}

// Register registers the command with cobra
func (c *Command) Register(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "close",
		Short: "Close a pull request without landing it",
		Long: `Close the pull request of a commit, delete its remote branches, and
remove the pull request link from the commit message.

The commit itself is untouched; a later 'jj-spr diff' opens a fresh pull
request for it.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			c.Clients, err = common.InitClients(cmd.Context())
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&c.Revision, "revision", "r", "", "Revision whose pull request to close (defaults to @)")

	parent.AddCommand(cmd)
}

// Run executes the command
func (c *Command) Run(ctx context.Context) error {
	cfg := c.Clients.Config
	vcs := c.Clients.JJ

	revision := c.Revision
	if revision == "" {
		revision = "@"
	}

	commit, err := vcs.GetPreparedCommit(ctx, cfg, revision)
	if err != nil {
		return err
	}
	ui.CommitTitle(commit)

	if commit.PullRequestNumber == 0 {
		return land.ErrNoPullRequest
	}
	number := commit.PullRequestNumber

	pr, err := c.Clients.GitHub.GetPullRequest(ctx, number)
	if err != nil {
		return err
	}
	if pr.State != gh.PullRequestStateOpen {
		return land.ErrAlreadyClosed
	}

	state := "closed"
	if err := c.Clients.GitHub.UpdatePullRequest(ctx, number, gh.PullRequestUpdate{State: &state}); err != nil {
		return err
	}
	ui.Outputf("#️⃣", "Closed Pull Request #%d", number)

	// Branch deletion is best effort; the PR is already closed.
	var deletes []jj.Waiter
	if w, err := vcs.DeleteRemoteBranchAsync(ctx, cfg.RemoteName, pr.HeadRef); err == nil {
		deletes = append(deletes, w)
	}
	if !cfg.IsMasterBranch(pr.BaseRef) {
		if w, err := vcs.DeleteRemoteBranchAsync(ctx, cfg.RemoteName, pr.BaseRef); err == nil {
			deletes = append(deletes, w)
		}
	}

	commit.SetSection(message.SectionPullRequest, "")
	if err := vcs.RewriteMessages(ctx, []*jj.PreparedCommit{commit}); err != nil {
		return err
	}

	for _, w := range deletes {
		_ = w.Wait()
	}
	return nil
}
