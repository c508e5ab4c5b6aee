package format

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jj-spr/jj-spr/internal/common"
	"github.com/jj-spr/jj-spr/internal/config"
	"github.com/jj-spr/jj-spr/internal/jj"
	"github.com/jj-spr/jj-spr/internal/message"
	"github.com/jj-spr/jj-spr/internal/ui"
)

// Command normalizes commit messages
type Command struct {
	// Flags
	Revision string // Revision to format, defaults to the current checkout
	All      bool   // Format every unlanded commit up to the revision

	Clients *common.Clients
}

// Register registers the command with cobra
func (c *Command) Register(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "format",
		Short: "Normalize the commit message",
		Long: `Parse the commit message into its sections and write it back in
canonical form: fixed section order, one blank line between sections.

If a test plan is required by configuration and the commit has none, an
empty Test Plan section is added for you to fill in.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			c.Clients, err = common.InitClients(cmd.Context())
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&c.Revision, "revision", "r", "", "Revision to format (defaults to @)")
	cmd.Flags().BoolVar(&c.All, "all", false, "Format all unlanded commits up to the revision")

	parent.AddCommand(cmd)
}

// Run executes the command
func (c *Command) Run(ctx context.Context) error {
	return run(ctx, c.Clients.Config, c.Clients.JJ, c.Revision, c.All)
}

func run(ctx context.Context, cfg *config.Config, vcs *jj.Client, revision string, all bool) error {
	if revision == "" {
		revision = "@"
	}

	var commits []*jj.PreparedCommit
	var err error
	if all {
		masterOID, resolveErr := vcs.ResolveRevision(cfg.MasterRef.Local())
		if resolveErr != nil {
			return resolveErr
		}
		commits, err = vcs.GetStackCommits(ctx, cfg, masterOID, revision)
	} else {
		var commit *jj.PreparedCommit
		commit, err = vcs.GetPreparedCommit(ctx, cfg, revision)
		commits = []*jj.PreparedCommit{commit}
	}
	if err != nil {
		return err
	}

	formatted := 0
	for _, commit := range commits {
		if cfg.RequireTestPlan && commit.Message[message.SectionTestPlan] == "" {
			// Parsing drops empty sections, so force the placeholder in.
			commit.Message[message.SectionTestPlan] = "TODO"
			commit.MessageChanged = true
			ui.Warning(fmt.Sprintf("commit %s has no test plan; added a placeholder", commit.ShortID))
		}
		if commit.MessageChanged {
			formatted++
		}
	}

	if formatted == 0 {
		ui.Info("All commit messages are already in canonical form.")
		return nil
	}
	if err := vcs.RewriteMessages(ctx, commits); err != nil {
		return err
	}
	ui.Successf("Reformatted %d commit message(s)", formatted)
	return nil
}
