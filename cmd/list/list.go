package list

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jj-spr/jj-spr/internal/common"
	"github.com/jj-spr/jj-spr/internal/ui"
)

// Command lists the user's open pull requests
type Command struct {
	// Flags
	All bool // Include PRs not managed under the configured branch prefix

	Clients *common.Clients
}

// Register registers the command with cobra
func (c *Command) Register(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your open pull requests",
		Long: `List your open pull requests in this repository with their review
status.

Only pull requests managed by jj-spr (head branch under the configured
prefix) are shown; --all includes the rest.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			c.Clients, err = common.InitClients(cmd.Context())
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&c.All, "all", false, "Include pull requests not created by jj-spr")

	parent.AddCommand(cmd)
}

// Run executes the command
func (c *Command) Run(ctx context.Context) error {
	cfg := c.Clients.Config

	summaries, err := c.Clients.GitHub.ListOpenPullRequests(ctx)
	if err != nil {
		return err
	}

	tbl := ui.NewPRTable()
	tbl.Headers("PR", "TITLE", "BASE", "REVIEW")

	rows := 0
	for _, pr := range summaries {
		if !c.All && !strings.HasPrefix(pr.HeadRef, cfg.BranchPrefix) {
			continue
		}
		tbl.Row(
			fmt.Sprintf("#%d", pr.Number),
			pr.Title,
			pr.BaseRef,
			ui.ReviewStatusStyle(pr.ReviewStatus.String()).Render(pr.ReviewStatus.String()),
		)
		rows++
	}

	if rows == 0 {
		ui.Info("No open pull requests.")
		return nil
	}
	ui.Print(tbl.Render())
	return nil
}
