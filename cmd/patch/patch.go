package patch

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jj-spr/jj-spr/internal/common"
	"github.com/jj-spr/jj-spr/internal/message"
	"github.com/jj-spr/jj-spr/internal/ui"
)

// Command checks out a pull request as a local commit
type Command struct {
	Clients *common.Clients
}

// Register registers the command with cobra
func (c *Command) Register(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "patch <number>",
		Short: "Create a local commit from a pull request",
		Long: `Fetch a pull request's head and create a local commit with its
contents on top of the integration branch.

The new commit carries the pull request's message including its link, so
'jj-spr diff' from the patched commit updates the same pull request.

Example:
  jj-spr patch 123`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			c.Clients, err = common.InitClients(cmd.Context())
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := strconv.Atoi(args[0])
			if err != nil || number <= 0 {
				return fmt.Errorf("invalid pull request number '%s'", args[0])
			}
			return c.Run(cmd.Context(), number)
		},
	}

	parent.AddCommand(cmd)
}

// Run executes the command
func (c *Command) Run(ctx context.Context, number int) error {
	cfg := c.Clients.Config
	vcs := c.Clients.JJ

	pr, err := c.Clients.GitHub.GetPullRequest(ctx, number)
	if err != nil {
		return err
	}
	ui.Outputf("#️⃣", "Pull Request #%d", number)

	if err := vcs.Fetch(ctx, cfg.RemoteName, cfg.MasterRef.OnRemote(), pr.HeadRef); err != nil {
		return err
	}
	masterOID, err := vcs.ResolveRevision(cfg.MasterRef.Local())
	if err != nil {
		return err
	}

	// The head branch's tree on top of the current integration tip, under
	// the pull request's own message.
	merged, err := vcs.SimulateMerge(ctx, masterOID, pr.HeadOID)
	if err != nil {
		return err
	}
	if len(merged.Conflicts) > 0 {
		return fmt.Errorf("pull request #%d conflicts with %s (%v); resolve on GitHub or patch manually",
			number, cfg.MasterRef.OnRemote(), merged.Conflicts)
	}

	sections := pr.Sections
	sections[message.SectionPullRequest] = cfg.PullRequestURL(number)
	commitOID, err := vcs.CreateDerivedCommit(pr.HeadOID, message.Build(sections), merged.TreeOID, []string{masterOID})
	if err != nil {
		return err
	}

	if err := vcs.CheckoutCommit(ctx, commitOID); err != nil {
		return err
	}
	ui.Successf("Pull request #%d checked out as %s", number, commitOID[:7])
	return nil
}
