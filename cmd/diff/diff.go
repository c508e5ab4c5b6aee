package diff

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jj-spr/jj-spr/internal/common"
	"github.com/jj-spr/jj-spr/internal/gh"
	"github.com/jj-spr/jj-spr/internal/jj"
	"github.com/jj-spr/jj-spr/internal/message"
	"github.com/jj-spr/jj-spr/internal/ui"
)

// Command creates or updates pull requests for local commits
type Command struct {
	// Flags
	Revision      string // Revision to submit, defaults to the current checkout
	All           bool   // Submit every unlanded commit up to the revision
	UpdateMessage bool   // Overwrite the PR title/body with the local message

	Clients *common.Clients
}

// Register registers the command with cobra
func (c *Command) Register(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Create or update the pull request for a commit",
		Long: `Create or update the GitHub pull request for a commit.

The commit is pushed to its own head branch and a pull request is opened
against the integration branch. The pull request URL is written back into
the commit message, so later invocations update the same pull request.

With --all, every unlanded commit between the integration branch and the
revision is submitted, each pull request based on the previous commit's
head branch.

Example:
  jj-spr diff            # Submit the current checkout
  jj-spr diff --all      # Submit the whole stack
  jj-spr diff -r xyz     # Submit the commit at revision xyz`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			c.Clients, err = common.InitClients(cmd.Context())
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&c.Revision, "revision", "r", "", "Revision to submit (defaults to @)")
	cmd.Flags().BoolVar(&c.All, "all", false, "Submit all unlanded commits up to the revision")
	cmd.Flags().BoolVar(&c.UpdateMessage, "update-message", false, "Overwrite the pull request title and description with the local commit message")

	parent.AddCommand(cmd)
}

// head identifies the branch and commit a pull request's head points at
// after a push, so the next commit in a stack can base itself on it.
type head struct {
	branch string
	oid    string
}

// Run executes the command
func (c *Command) Run(ctx context.Context) error {
	cfg := c.Clients.Config
	vcs := c.Clients.JJ

	if err := vcs.CheckNoUncommittedChanges(ctx); err != nil {
		return err
	}

	revision := c.Revision
	if revision == "" {
		revision = "@"
	}

	if err := vcs.Fetch(ctx, cfg.RemoteName, cfg.MasterRef.OnRemote()); err != nil {
		return err
	}
	masterOID, err := vcs.ResolveRevision(cfg.MasterRef.Local())
	if err != nil {
		return err
	}

	var commits []*jj.PreparedCommit
	if c.All {
		// The backend takes revsets; the fetched tip's commit id is one.
		commits, err = vcs.GetStackCommits(ctx, cfg, masterOID, revision)
	} else {
		var commit *jj.PreparedCommit
		commit, err = vcs.GetPreparedCommit(ctx, cfg, revision)
		commits = []*jj.PreparedCommit{commit}
	}
	if err != nil {
		return err
	}
	if len(commits) == 0 {
		ui.Info("No commits to submit.")
		return nil
	}

	// Submitting a later commit invalidates nothing about an earlier one,
	// so a mid-stack failure leaves the already-written PullRequest links
	// behind for the next run to pick up.
	var prev *head
	for _, commit := range commits {
		submitted, err := c.submitCommit(ctx, commit, masterOID, prev)
		if rewriteErr := vcs.RewriteMessages(ctx, []*jj.PreparedCommit{commit}); rewriteErr != nil && err == nil {
			err = rewriteErr
		}
		if err != nil {
			return err
		}
		prev = submitted
	}
	return nil
}

// submitCommit pushes one commit to its head branch and creates or updates
// its pull request. prev is the previous stack entry's pushed head, nil when
// the commit sits directly on the integration branch.
func (c *Command) submitCommit(ctx context.Context, commit *jj.PreparedCommit, masterOID string, prev *head) (*head, error) {
	cfg := c.Clients.Config

	ui.CommitTitle(commit)

	var pr *gh.PullRequest
	if commit.PullRequestNumber != 0 {
		existing, err := c.Clients.GitHub.GetPullRequest(ctx, commit.PullRequestNumber)
		if err != nil {
			return nil, err
		}
		switch existing.State {
		case gh.PullRequestStateMerged:
			return nil, fmt.Errorf("pull request #%d is already merged; remove its link from the commit message to submit the commit again", existing.Number)
		case gh.PullRequestStateClosed:
			return nil, fmt.Errorf("pull request #%d is closed; reopen it or remove its link from the commit message", existing.Number)
		}
		pr = existing
	}

	headBranch := common.GenerateBranchName(cfg)
	if pr != nil {
		headBranch = pr.HeadRef
	}

	pushed, baseRef, err := c.pushHead(ctx, commit, masterOID, prev, pr, headBranch)
	if err != nil {
		return nil, err
	}

	if pr == nil {
		return pushed, c.createPullRequest(ctx, commit, headBranch, baseRef)
	}
	return pushed, c.updatePullRequest(ctx, commit, pr, baseRef)
}

// pushHead builds the commit that becomes the pull request head and pushes
// it. The head commit's parent is chosen so the pull request's diff shows
// exactly the commit's own change: the integration tip when the commit
// applies there cleanly, otherwise a base branch capturing the commit's
// parent state.
func (c *Command) pushHead(ctx context.Context, commit *jj.PreparedCommit, masterOID string, prev *head, pr *gh.PullRequest, headBranch string) (*head, string, error) {
	cfg := c.Clients.Config
	vcs := c.Clients.JJ

	headMessage := message.Build(commit.Message)

	var headOID string
	baseRef := cfg.MasterRef.OnRemote()

	switch {
	case prev != nil:
		// Stacked on the previous pull request's head branch.
		tree, err := vcs.TreeOID(commit.OID)
		if err != nil {
			return nil, "", err
		}
		headOID, err = vcs.CreateDerivedCommit(commit.OID, headMessage, tree, []string{prev.oid})
		if err != nil {
			return nil, "", err
		}
		baseRef = prev.branch

	default:
		cherry, err := vcs.CherryPick(ctx, commit.OID, masterOID)
		if err != nil {
			return nil, "", err
		}
		if len(cherry.Conflicts) == 0 {
			headOID, err = vcs.CreateDerivedCommit(commit.OID, headMessage, cherry.TreeOID, []string{masterOID})
			if err != nil {
				return nil, "", err
			}
			break
		}

		// The commit does not apply to the integration tip on its own, so
		// its parent's state becomes a base branch and the pull request is
		// opened against that.
		baseOID, baseBranch, err := c.pushBase(ctx, commit, masterOID, pr, headBranch)
		if err != nil {
			return nil, "", err
		}
		tree, err := vcs.TreeOID(commit.OID)
		if err != nil {
			return nil, "", err
		}
		headOID, err = vcs.CreateDerivedCommit(commit.OID, headMessage, tree, []string{baseOID})
		if err != nil {
			return nil, "", err
		}
		baseRef = baseBranch
	}

	if err := vcs.PushCommit(ctx, headOID, cfg.RemoteName, headBranch); err != nil {
		return nil, "", err
	}
	return &head{branch: headBranch, oid: headOID}, baseRef, nil
}

// pushBase publishes the commit's parent state as the pull request's base
// branch. An existing non-default base branch is reused so the pull request
// keeps its history.
func (c *Command) pushBase(ctx context.Context, commit *jj.PreparedCommit, masterOID string, pr *gh.PullRequest, headBranch string) (string, string, error) {
	cfg := c.Clients.Config
	vcs := c.Clients.JJ

	baseBranch := headBranch + ".base"
	if pr != nil && !cfg.IsMasterBranch(pr.BaseRef) {
		baseBranch = pr.BaseRef
	}

	parentTree, err := vcs.TreeOID(commit.ParentOID)
	if err != nil {
		return "", "", err
	}

	msg := fmt.Sprintf("[spr] changes to %s this commit is based on\n", cfg.MasterRef.OnRemote())
	if cfg.AddBannerCommit {
		msg = fmt.Sprintf("[spr] DO NOT MERGE: base of pull request, will be landed as part of it\n\n%s", msg)
	}

	baseOID, err := vcs.CreateDerivedCommit(commit.ParentOID, msg, parentTree, []string{masterOID})
	if err != nil {
		return "", "", err
	}
	if err := vcs.PushCommit(ctx, baseOID, cfg.RemoteName, baseBranch); err != nil {
		return "", "", err
	}
	return baseOID, baseBranch, nil
}

func (c *Command) createPullRequest(ctx context.Context, commit *jj.PreparedCommit, headBranch, baseRef string) error {
	cfg := c.Clients.Config

	pr, err := c.Clients.GitHub.CreatePullRequest(ctx,
		commit.Title(), message.BuildBody(commit.Message), headBranch, baseRef, false)
	if err != nil {
		return err
	}

	commit.SetSection(message.SectionPullRequest, cfg.PullRequestURL(pr.Number))
	ui.Outputf("#️⃣", "Created Pull Request: %s", cfg.PullRequestURL(pr.Number))

	if reviewers := splitReviewers(commit.Message[message.SectionReviewers]); len(reviewers) > 0 {
		if err := c.Clients.GitHub.RequestReviewers(ctx, pr.Number, reviewers); err != nil {
			return err
		}
	}
	if cfg.AddSkipCiComment {
		if err := c.Clients.GitHub.CreateComment(ctx, pr.Number, "[skip ci]"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Command) updatePullRequest(ctx context.Context, commit *jj.PreparedCommit, pr *gh.PullRequest, baseRef string) error {
	var update gh.PullRequestUpdate
	if c.UpdateMessage {
		title := commit.Title()
		body := message.BuildBody(commit.Message)
		if title != pr.Title {
			update.Title = &title
		}
		update.Body = &body
	}
	if baseRef != pr.BaseRef {
		update.Base = &baseRef
	}

	if update.Title != nil || update.Body != nil || update.Base != nil {
		if err := c.Clients.GitHub.UpdatePullRequest(ctx, pr.Number, update); err != nil {
			return err
		}
	}
	ui.Outputf("#️⃣", "Updated Pull Request: %s", c.Clients.Config.PullRequestURL(pr.Number))
	return nil
}

// splitReviewers parses the Reviewers section into GitHub logins.
func splitReviewers(text string) []string {
	var reviewers []string
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	}) {
		reviewers = append(reviewers, strings.TrimPrefix(field, "@"))
	}
	return reviewers
}
