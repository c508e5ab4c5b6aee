// Package land merges a reviewed pull request into the integration branch.
//
// Landing is a multi-step remote mutation without a transaction around it:
// the pull request's base may be retargeted before the merge, and the merge
// itself can fail afterwards. The workflow therefore validates everything it
// can before the first mutation, performs the one compensatable mutation
// (the base retarget), polls GitHub's asynchronous mergeability answer with
// a bounded retry, merges, and rolls the retarget back if the merge fails.
package land

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jj-spr/jj-spr/internal/config"
	"github.com/jj-spr/jj-spr/internal/errs"
	"github.com/jj-spr/jj-spr/internal/gh"
	"github.com/jj-spr/jj-spr/internal/jj"
	"github.com/jj-spr/jj-spr/internal/message"
	"github.com/jj-spr/jj-spr/internal/ui"
)

// Precondition failures. None of these is raised after a remote mutation.
var (
	ErrNoPullRequest   = errors.New("this commit does not refer to a pull request")
	ErrAlreadyClosed   = errors.New("this pull request is already closed")
	ErrNotApproved     = errors.New("this pull request has not been approved on GitHub")
	ErrParentNotLanded = errors.New("this commit's parent has not landed yet; land it first, or pass --cherry-pick to land this change on its own")
)

// Failures during or after the merge protocol.
var (
	// ErrOutOfSync means the local commit and the pull request no longer
	// describe the same change.
	ErrOutOfSync = errors.New("this commit has been updated and/or rebased since the pull request was last updated; run 'jj-spr diff' to update the pull request and then try 'jj-spr land' again")

	// ErrConcurrentUpdate means the pull request's head moved underneath
	// the operation. Distinguished from transient unavailability: it is
	// never retried.
	ErrConcurrentUpdate = errors.New("the pull request seems to have been updated externally, please try again")

	ErrNotMergeable = errors.New("GitHub concluded the pull request is not mergeable at this point; please rebase your changes and try again")

	ErrMergeabilityTimeout = errors.New("GitHub did not finish checking mergeability, please try again")
)

const (
	mergeabilityAttempts = 10
	mergeabilityDelay    = time.Second
	fetchAttempts        = 3
)

// GitHubClient is the slice of the remote service the land workflow uses.
type GitHubClient interface {
	GetPullRequest(ctx context.Context, number int) (*gh.PullRequest, error)
	GetPullRequestMergeability(ctx context.Context, number int) (gh.MergeabilityStatus, error)
	UpdatePullRequest(ctx context.Context, number int, update gh.PullRequestUpdate) error
	MergePullRequest(ctx context.Context, number int, title, body, expectedHeadOID string) (gh.MergeResult, error)
}

// VCS is the slice of the version-control adapter the land workflow uses.
type VCS interface {
	CheckNoUncommittedChanges(ctx context.Context) error
	GetPreparedCommit(ctx context.Context, cfg *config.Config, revision string) (*jj.PreparedCommit, error)
	ResolveRevision(rev string) (string, error)
	IsAncestor(ancestorOID, descendantOID string) (bool, error)
	CherryPick(ctx context.Context, commitOID, ontoOID string) (jj.CherryPickResult, error)
	SimulateMerge(ctx context.Context, intoOID, fromOID string) (jj.CherryPickResult, error)
	CreateDerivedCommit(originalOID, msg, treeOID string, parentOIDs []string) (string, error)
	Fetch(ctx context.Context, remote string, refs ...string) error
	PushCommit(ctx context.Context, oid, remote, branch string) error
	DeleteRemoteBranchAsync(ctx context.Context, remote, branch string) (jj.Waiter, error)
}

// Options selects what to land.
type Options struct {
	// Revision is the revision expression of the commit to land. Defaults
	// to "@", the current checkout.
	Revision string

	// CherryPick marks a commit produced with a cherry-pick based diff
	// workflow; its parent is not expected to sit on the stack.
	CherryPick bool
}

// Orchestrator runs the land protocol.
type Orchestrator struct {
	cfg *config.Config
	gh  GitHubClient
	vcs VCS

	// sleep is replaced in tests.
	sleep func(time.Duration)
}

// New creates an Orchestrator.
func New(cfg *config.Config, client GitHubClient, vcs VCS) *Orchestrator {
	return &Orchestrator{
		cfg:   cfg,
		gh:    client,
		vcs:   vcs,
		sleep: time.Sleep,
	}
}

// Land validates, reconciles, merges, and cleans up one pull request. On a
// merge failure after the base was retargeted, the original base is
// restored; a failure of that rollback is appended to the original error,
// never replacing it.
func (o *Orchestrator) Land(ctx context.Context, opts Options) error {
	revision := opts.Revision
	if revision == "" {
		revision = "@"
	}

	// Validation. Nothing below mutates the remote until the retarget.
	if err := o.vcs.CheckNoUncommittedChanges(ctx); err != nil {
		return err
	}

	commit, err := o.vcs.GetPreparedCommit(ctx, o.cfg, revision)
	if err != nil {
		return err
	}
	ui.CommitTitle(commit)

	if commit.PullRequestNumber == 0 {
		return ErrNoPullRequest
	}
	number := commit.PullRequestNumber
	ui.Outputf("#️⃣", "Pull Request #%d", number)

	pr, err := o.gh.GetPullRequest(ctx, number)
	if err != nil {
		return err
	}
	if pr.State != gh.PullRequestStateOpen {
		return ErrAlreadyClosed
	}
	if o.cfg.RequireApproval && pr.ReviewStatus != gh.ReviewStatusApproved {
		return ErrNotApproved
	}

	ui.Output("🛫", "Getting started...")

	// Bring the integration branch tip and the pull request head into the
	// local object store. No ref mutation happens here.
	if err := o.vcs.Fetch(ctx, o.cfg.RemoteName, o.cfg.MasterRef.OnRemote(), pr.HeadRef); err != nil {
		return err
	}
	masterOID, err := o.vcs.ResolveRevision(o.cfg.MasterRef.Local())
	if err != nil {
		return err
	}

	// A squash merge takes the head branch's whole delta against the
	// integration branch, so an unlanded parent's changes would land along
	// with this commit's. CherryPick opts into landing the change alone.
	if !opts.CherryPick && commit.ParentOID != commit.OID {
		landed, err := o.vcs.IsAncestor(commit.ParentOID, masterOID)
		if err != nil {
			return err
		}
		if !landed {
			return ErrParentNotLanded
		}
	}

	// Correctness invariant: the tree GitHub produces by merging the pull
	// request must equal the tree of cherry-picking the local commit onto
	// the integration tip, which is the content local testing validated.
	cherry, err := o.vcs.CherryPick(ctx, commit.OID, masterOID)
	if err != nil {
		return err
	}
	if len(cherry.Conflicts) > 0 {
		return fmt.Errorf("%w (conflicts in %v)", ErrOutOfSync, cherry.Conflicts)
	}
	simulated, err := o.vcs.SimulateMerge(ctx, masterOID, pr.HeadOID)
	if err != nil {
		return err
	}
	if len(simulated.Conflicts) > 0 || simulated.TreeOID != cherry.TreeOID {
		return ErrOutOfSync
	}

	prHeadOID := pr.HeadOID
	baseIsMaster := o.cfg.IsMasterBranch(pr.BaseRef)

	if !baseIsMaster {
		if err := o.reconcileBase(ctx, commit, pr, masterOID); err != nil {
			return err
		}
	}

	mergeOID, mergeErr := o.pollAndMerge(ctx, pr, prHeadOID)
	if mergeErr != nil {
		ui.Output("❌", "GitHub Pull Request merge failed")
		opErr := errs.Convert(mergeErr)
		if !baseIsMaster {
			// Compensate the retarget so the pull request goes back to
			// its stacked base. Best effort: its failure is reported
			// alongside the root cause, not instead of it.
			restore := pr.BaseRef
			if err := o.gh.UpdatePullRequest(ctx, number, gh.PullRequestUpdate{Base: &restore}); err != nil {
				opErr.Push(fmt.Sprintf("restoring the pull request base to %s also failed: %v", restore, err))
			}
		}
		return opErr
	}

	ui.Output("🛬", "Landed!")
	o.cleanup(ctx, pr, baseIsMaster, mergeOID)
	return nil
}

// cleanup deletes the pull request's remote branches and fetches the new
// merge commit. Everything here is best effort: the merge has happened, and
// nothing below may turn it into a reported failure. The two branch
// deletions run concurrently and are joined before returning, so their
// output cannot interleave with the workflow's own progress lines.
func (o *Orchestrator) cleanup(ctx context.Context, pr *gh.PullRequest, baseIsMaster bool, mergeOID string) {
	headDelete, err := o.vcs.DeleteRemoteBranchAsync(ctx, o.cfg.RemoteName, pr.HeadRef)
	if err != nil {
		headDelete = nil
	}
	var baseDelete jj.Waiter
	if !baseIsMaster {
		if proc, err := o.vcs.DeleteRemoteBranchAsync(ctx, o.cfg.RemoteName, pr.BaseRef); err == nil {
			baseDelete = proc
		}
	}

	if mergeOID != "" {
		// The merge commit may not be fetchable the very moment after the
		// merge; retry a few times before giving up.
		var fetchErr error
		for attempt := 1; attempt <= fetchAttempts; attempt++ {
			fetchErr = o.vcs.Fetch(ctx, o.cfg.RemoteName, o.cfg.MasterRef.OnRemote(), mergeOID)
			if fetchErr == nil {
				break
			}
		}
		if fetchErr != nil {
			ui.Warning(fmt.Sprintf("could not fetch the landed commit: %v", fetchErr))
		} else {
			ui.Outputf("⚠️", "Rebase your stack onto the landed commit, e.g. 'jj rebase -d %s'", o.cfg.MasterRef.Local())
		}
	}

	// GitHub may be configured to delete merged branches itself, in which
	// case these pushes fail harmlessly.
	if headDelete != nil {
		_ = headDelete.Wait()
	}
	if baseDelete != nil {
		_ = baseDelete.Wait()
	}
}

// reconcileBase prepares a stacked pull request for a direct merge into the
// integration branch. The base branch is first merged with the current
// integration tip so the pull request's diff shrinks to the commit's own
// change, then the pull request is retargeted. The retarget is the first
// remote mutation of the whole operation.
func (o *Orchestrator) reconcileBase(ctx context.Context, commit *jj.PreparedCommit, pr *gh.PullRequest, masterOID string) error {
	base := o.cfg.RemoteBranchNamed(pr.BaseRef)
	if err := o.vcs.Fetch(ctx, o.cfg.RemoteName, base.OnRemote()); err != nil {
		return err
	}
	baseOID, err := o.vcs.ResolveRevision(base.Local())
	if err != nil {
		return err
	}

	merged, err := o.vcs.SimulateMerge(ctx, baseOID, masterOID)
	if err != nil {
		return err
	}
	if len(merged.Conflicts) > 0 {
		return fmt.Errorf("%w (base branch %s conflicts with %s)",
			ErrNotMergeable, base.OnRemote(), o.cfg.MasterRef.OnRemote())
	}

	mergeCommit, err := o.vcs.CreateDerivedCommit(
		commit.OID,
		fmt.Sprintf("[spr] merge %s into %s\n", o.cfg.MasterRef.OnRemote(), base.OnRemote()),
		merged.TreeOID,
		[]string{baseOID, masterOID},
	)
	if err != nil {
		return err
	}
	if err := o.vcs.PushCommit(ctx, mergeCommit, o.cfg.RemoteName, base.OnRemote()); err != nil {
		return err
	}

	master := o.cfg.MasterRef.OnRemote()
	return o.gh.UpdatePullRequest(ctx, pr.Number, gh.PullRequestUpdate{Base: &master})
}

// pollAndMerge waits for GitHub to report the pull request mergeable
// against the integration branch, then squash-merges it at the exact head
// that was validated.
func (o *Orchestrator) pollAndMerge(ctx context.Context, pr *gh.PullRequest, prHeadOID string) (string, error) {
	for attempt := 1; ; attempt++ {
		status, err := o.gh.GetPullRequestMergeability(ctx, pr.Number)
		if err != nil {
			return "", err
		}

		if status.HeadOID != prHeadOID {
			return "", ErrConcurrentUpdate
		}

		if o.cfg.IsMasterBranch(status.BaseRef) && status.Mergeability != gh.MergeabilityUnknown {
			if status.Mergeability == gh.MergeabilityConflicting {
				return "", ErrNotMergeable
			}
			break
		}

		if attempt >= mergeabilityAttempts {
			return "", ErrMergeabilityTimeout
		}
		o.sleep(mergeabilityDelay)
	}

	var reviewedBy []string
	if o.cfg.AddReviewedBy {
		reviewedBy = pr.Reviewers
	}
	body := message.BuildMergeBody(pr.Sections, reviewedBy)

	result, err := o.gh.MergePullRequest(ctx, pr.Number, pr.Title, body, prHeadOID)
	if err != nil {
		return "", err
	}
	// A "not merged" response is a merge failure like any other.
	if !result.Merged {
		return "", fmt.Errorf("GitHub pull request merge failed: %s", result.Message)
	}
	return result.OID, nil
}
