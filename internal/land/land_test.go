package land

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jj-spr/jj-spr/internal/config"
	"github.com/jj-spr/jj-spr/internal/errs"
	"github.com/jj-spr/jj-spr/internal/gh"
	"github.com/jj-spr/jj-spr/internal/jj"
	"github.com/jj-spr/jj-spr/internal/message"
)

func oid(seed string) string {
	return strings.Repeat(seed, 40/len(seed))[:40]
}

var (
	commitOID  = oid("1a")
	parentOID  = oid("2b")
	masterOID  = oid("3c")
	headOID    = oid("4d")
	baseOID    = oid("5e")
	cherryTree = oid("6f")
	mergedTree = oid("7a")
	derivedOID = oid("8b")
	landedOID  = oid("9c")
)

func landConfig(requireApproval bool) *config.Config {
	return config.New("acme", "widgets", "origin", "main", "spr/test/",
		requireApproval, true, false, true, false)
}

func preparedCommit(prNumber int) *jj.PreparedCommit {
	sections := message.Sections{
		message.SectionTitle:   "Add widget cache",
		message.SectionSummary: "Caches widgets.",
	}
	if prNumber > 0 {
		sections[message.SectionPullRequest] = fmt.Sprintf("https://github.com/acme/widgets/pull/%d", prNumber)
	}
	return &jj.PreparedCommit{
		OID:               commitOID,
		ShortID:           commitOID[:7],
		ParentOID:         parentOID,
		Message:           sections,
		PullRequestNumber: prNumber,
	}
}

func openPR(baseRef string) *gh.PullRequest {
	return &gh.PullRequest{
		Number:       42,
		State:        gh.PullRequestStateOpen,
		ReviewStatus: gh.ReviewStatusApproved,
		Title:        "Add widget cache",
		Sections: message.Sections{
			message.SectionTitle:       "Add widget cache",
			message.SectionSummary:     "Caches widgets.",
			message.SectionTestPlan:    "go test ./...",
			message.SectionPullRequest: "https://github.com/acme/widgets/pull/42",
		},
		BaseRef:   baseRef,
		HeadRef:   "spr/test/head",
		HeadOID:   headOID,
		Reviewers: []string{"alice"},
	}
}

type fakeWaiter struct{ err error }

func (w fakeWaiter) Wait() error { return w.err }

type pushRecord struct {
	oid    string
	branch string
}

type derivedRecord struct {
	original string
	tree     string
	parents  []string
}

// fakeVCS is a happy-path VCS whose behavior individual tests override.
type fakeVCS struct {
	commit     *jj.PreparedCommit
	checkClean error

	cherryResult   jj.CherryPickResult
	simulateMerge  func(into, from string) (jj.CherryPickResult, error)
	fetchErr       func(refs []string) error
	resolveErr     error
	parentUnlanded bool

	fetches         [][]string
	pushes          []pushRecord
	derived         []derivedRecord
	deletedBranches []string
}

func newFakeVCS(commit *jj.PreparedCommit) *fakeVCS {
	return &fakeVCS{
		commit:       commit,
		cherryResult: jj.CherryPickResult{TreeOID: cherryTree},
	}
}

func (f *fakeVCS) CheckNoUncommittedChanges(ctx context.Context) error {
	return f.checkClean
}

func (f *fakeVCS) GetPreparedCommit(ctx context.Context, cfg *config.Config, revision string) (*jj.PreparedCommit, error) {
	return f.commit, nil
}

func (f *fakeVCS) ResolveRevision(rev string) (string, error) {
	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	switch rev {
	case "origin/main":
		return masterOID, nil
	default:
		return baseOID, nil
	}
}

func (f *fakeVCS) IsAncestor(ancestorOID, descendantOID string) (bool, error) {
	return !f.parentUnlanded, nil
}

func (f *fakeVCS) CherryPick(ctx context.Context, commitOID, ontoOID string) (jj.CherryPickResult, error) {
	return f.cherryResult, nil
}

func (f *fakeVCS) SimulateMerge(ctx context.Context, intoOID, fromOID string) (jj.CherryPickResult, error) {
	if f.simulateMerge != nil {
		return f.simulateMerge(intoOID, fromOID)
	}
	if intoOID == baseOID {
		// Merging the integration tip into the stacked base branch.
		return jj.CherryPickResult{TreeOID: mergedTree}, nil
	}
	// Simulated merge of the PR head matches the cherry-pick tree.
	return jj.CherryPickResult{TreeOID: f.cherryResult.TreeOID}, nil
}

func (f *fakeVCS) CreateDerivedCommit(originalOID, msg, treeOID string, parentOIDs []string) (string, error) {
	f.derived = append(f.derived, derivedRecord{original: originalOID, tree: treeOID, parents: parentOIDs})
	return derivedOID, nil
}

func (f *fakeVCS) Fetch(ctx context.Context, remote string, refs ...string) error {
	f.fetches = append(f.fetches, refs)
	if f.fetchErr != nil {
		return f.fetchErr(refs)
	}
	return nil
}

func (f *fakeVCS) PushCommit(ctx context.Context, oid, remote, branch string) error {
	f.pushes = append(f.pushes, pushRecord{oid: oid, branch: branch})
	return nil
}

func (f *fakeVCS) DeleteRemoteBranchAsync(ctx context.Context, remote, branch string) (jj.Waiter, error) {
	f.deletedBranches = append(f.deletedBranches, branch)
	return fakeWaiter{}, nil
}

func newOrchestrator(cfg *config.Config, ghClient GitHubClient, vcs VCS) (*Orchestrator, *[]time.Duration) {
	o := New(cfg, ghClient, vcs)
	sleeps := &[]time.Duration{}
	o.sleep = func(d time.Duration) {
		*sleeps = append(*sleeps, d)
	}
	return o, sleeps
}

func mergeable() gh.MergeabilityStatus {
	return gh.MergeabilityStatus{HeadOID: headOID, BaseRef: "main", Mergeability: gh.MergeabilityMergeable}
}

func unknownMergeability() gh.MergeabilityStatus {
	return gh.MergeabilityStatus{HeadOID: headOID, BaseRef: "main", Mergeability: gh.MergeabilityUnknown}
}

func TestLandHappyPath(t *testing.T) {
	// Base already is the integration branch; mergeability resolves on the
	// first poll. Exactly one squash merge at the validated head, no base
	// updates of any kind.
	ghClient := &MockGitHubClient{}
	vcs := newFakeVCS(preparedCommit(42))
	pr := openPR("main")

	ghClient.On("GetPullRequest", 42).Return(pr, nil)
	ghClient.On("GetPullRequestMergeability", 42).Return(mergeable(), nil).Once()
	ghClient.On("MergePullRequest", 42, "Add widget cache", mock.Anything, headOID).
		Return(gh.MergeResult{Merged: true, OID: landedOID}, nil).Once()

	o, sleeps := newOrchestrator(landConfig(true), ghClient, vcs)
	err := o.Land(context.Background(), Options{})
	require.NoError(t, err)

	ghClient.AssertExpectations(t)
	ghClient.AssertNotCalled(t, "UpdatePullRequest", mock.Anything, mock.Anything)
	assert.Empty(t, *sleeps)
}

func TestLandMergeBodyKeepsSections(t *testing.T) {
	ghClient := &MockGitHubClient{}
	vcs := newFakeVCS(preparedCommit(42))
	pr := openPR("main")

	var mergeBody string
	ghClient.On("GetPullRequest", 42).Return(pr, nil)
	ghClient.On("GetPullRequestMergeability", 42).Return(mergeable(), nil)
	ghClient.On("MergePullRequest", 42, "Add widget cache", mock.Anything, headOID).
		Run(func(args mock.Arguments) {
			mergeBody = args.String(2)
		}).
		Return(gh.MergeResult{Merged: true, OID: landedOID}, nil)

	o, _ := newOrchestrator(landConfig(false), ghClient, vcs)
	require.NoError(t, o.Land(context.Background(), Options{}))

	assert.Contains(t, mergeBody, "Caches widgets.")
	assert.Contains(t, mergeBody, "Test Plan: go test ./...")
	assert.Contains(t, mergeBody, "Pull Request: https://github.com/acme/widgets/pull/42")
	assert.NotContains(t, mergeBody, "Add widget cache", "the title goes into the merge title, not the body")
}

func TestLandPollsUntilMergeabilityResolves(t *testing.T) {
	// Unknown for three polls, resolved on the fourth: four observation
	// calls, three one-second delays, one merge.
	ghClient := &MockGitHubClient{}
	vcs := newFakeVCS(preparedCommit(42))
	pr := openPR("main")

	ghClient.On("GetPullRequest", 42).Return(pr, nil)
	ghClient.On("GetPullRequestMergeability", 42).Return(unknownMergeability(), nil).Times(3)
	ghClient.On("GetPullRequestMergeability", 42).Return(mergeable(), nil).Once()
	ghClient.On("MergePullRequest", 42, "Add widget cache", mock.Anything, headOID).
		Return(gh.MergeResult{Merged: true, OID: landedOID}, nil).Once()

	o, sleeps := newOrchestrator(landConfig(false), ghClient, vcs)
	require.NoError(t, o.Land(context.Background(), Options{}))

	ghClient.AssertExpectations(t)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, *sleeps)
}

func TestLandMergeabilityTimeout(t *testing.T) {
	ghClient := &MockGitHubClient{}
	vcs := newFakeVCS(preparedCommit(42))
	pr := openPR("main")

	ghClient.On("GetPullRequest", 42).Return(pr, nil)
	ghClient.On("GetPullRequestMergeability", 42).Return(unknownMergeability(), nil).Times(10)

	o, sleeps := newOrchestrator(landConfig(false), ghClient, vcs)
	err := o.Land(context.Background(), Options{})
	require.ErrorIs(t, err, ErrMergeabilityTimeout)

	ghClient.AssertExpectations(t)
	ghClient.AssertNumberOfCalls(t, "GetPullRequestMergeability", 10)
	ghClient.AssertNotCalled(t, "MergePullRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, *sleeps, 9, "no delay after the final attempt")
}

func TestLandDetectsConcurrentUpdate(t *testing.T) {
	// The head hash moves between validation and the second poll. The
	// operation stops without a single merge call and without retrying.
	ghClient := &MockGitHubClient{}
	vcs := newFakeVCS(preparedCommit(42))
	pr := openPR("main")

	moved := gh.MergeabilityStatus{HeadOID: oid("0d"), BaseRef: "main", Mergeability: gh.MergeabilityUnknown}
	ghClient.On("GetPullRequest", 42).Return(pr, nil)
	ghClient.On("GetPullRequestMergeability", 42).Return(unknownMergeability(), nil).Once()
	ghClient.On("GetPullRequestMergeability", 42).Return(moved, nil).Once()

	o, _ := newOrchestrator(landConfig(false), ghClient, vcs)
	err := o.Land(context.Background(), Options{})
	require.ErrorIs(t, err, ErrConcurrentUpdate)

	ghClient.AssertNumberOfCalls(t, "GetPullRequestMergeability", 2)
	ghClient.AssertNotCalled(t, "MergePullRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLandNotMergeable(t *testing.T) {
	ghClient := &MockGitHubClient{}
	vcs := newFakeVCS(preparedCommit(42))
	pr := openPR("main")

	conflicting := gh.MergeabilityStatus{HeadOID: headOID, BaseRef: "main", Mergeability: gh.MergeabilityConflicting}
	ghClient.On("GetPullRequest", 42).Return(pr, nil)
	ghClient.On("GetPullRequestMergeability", 42).Return(conflicting, nil).Once()

	o, _ := newOrchestrator(landConfig(false), ghClient, vcs)
	err := o.Land(context.Background(), Options{})
	require.ErrorIs(t, err, ErrNotMergeable)

	ghClient.AssertNotCalled(t, "MergePullRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLandPreconditions(t *testing.T) {
	t.Run("dirty working copy", func(t *testing.T) {
		ghClient := &MockGitHubClient{}
		vcs := newFakeVCS(preparedCommit(42))
		vcs.checkClean = &jj.DirtyWorkingCopyError{Status: "M cache.go"}

		o, _ := newOrchestrator(landConfig(false), ghClient, vcs)
		err := o.Land(context.Background(), Options{})

		var dirty *jj.DirtyWorkingCopyError
		require.ErrorAs(t, err, &dirty)
		ghClient.AssertNotCalled(t, "GetPullRequest", mock.Anything)
	})

	t.Run("no pull request link", func(t *testing.T) {
		ghClient := &MockGitHubClient{}
		vcs := newFakeVCS(preparedCommit(0))

		o, _ := newOrchestrator(landConfig(false), ghClient, vcs)
		err := o.Land(context.Background(), Options{})
		require.ErrorIs(t, err, ErrNoPullRequest)
	})

	t.Run("pull request closed", func(t *testing.T) {
		ghClient := &MockGitHubClient{}
		vcs := newFakeVCS(preparedCommit(42))
		pr := openPR("main")
		pr.State = gh.PullRequestStateMerged
		ghClient.On("GetPullRequest", 42).Return(pr, nil)

		o, _ := newOrchestrator(landConfig(false), ghClient, vcs)
		err := o.Land(context.Background(), Options{})
		require.ErrorIs(t, err, ErrAlreadyClosed)
	})

	t.Run("parent not landed", func(t *testing.T) {
		ghClient := &MockGitHubClient{}
		vcs := newFakeVCS(preparedCommit(42))
		vcs.parentUnlanded = true
		ghClient.On("GetPullRequest", 42).Return(openPR("main"), nil)

		o, _ := newOrchestrator(landConfig(false), ghClient, vcs)
		err := o.Land(context.Background(), Options{})
		require.ErrorIs(t, err, ErrParentNotLanded)

		// The same commit lands on its own when asked to.
		ghClient.On("GetPullRequestMergeability", 42).Return(mergeable(), nil)
		ghClient.On("MergePullRequest", 42, "Add widget cache", mock.Anything, headOID).
			Return(gh.MergeResult{Merged: true, OID: landedOID}, nil)
		require.NoError(t, o.Land(context.Background(), Options{CherryPick: true}))
	})

	t.Run("approval required but missing", func(t *testing.T) {
		ghClient := &MockGitHubClient{}
		vcs := newFakeVCS(preparedCommit(42))
		pr := openPR("main")
		pr.ReviewStatus = gh.ReviewStatusPending
		ghClient.On("GetPullRequest", 42).Return(pr, nil)

		o, _ := newOrchestrator(landConfig(true), ghClient, vcs)
		err := o.Land(context.Background(), Options{})
		require.ErrorIs(t, err, ErrNotApproved)

		// Pure validation failure: no remote mutation was attempted.
		ghClient.AssertNotCalled(t, "UpdatePullRequest", mock.Anything, mock.Anything)
		ghClient.AssertNotCalled(t, "MergePullRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.Empty(t, vcs.fetches)
	})
}

func TestLandOutOfSync(t *testing.T) {
	// The simulated GitHub merge yields a different tree than the local
	// cherry-pick: the PR no longer matches the commit.
	ghClient := &MockGitHubClient{}
	vcs := newFakeVCS(preparedCommit(42))
	vcs.simulateMerge = func(into, from string) (jj.CherryPickResult, error) {
		return jj.CherryPickResult{TreeOID: oid("baadf00d")}, nil
	}
	ghClient.On("GetPullRequest", 42).Return(openPR("main"), nil)

	o, _ := newOrchestrator(landConfig(false), ghClient, vcs)
	err := o.Land(context.Background(), Options{})
	require.ErrorIs(t, err, ErrOutOfSync)

	ghClient.AssertNotCalled(t, "UpdatePullRequest", mock.Anything, mock.Anything)
	ghClient.AssertNotCalled(t, "MergePullRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLandRetargetsStackedBase(t *testing.T) {
	// The PR is stacked on an intermediate base branch. Landing merges the
	// integration tip into the base branch, retargets the PR to main, then
	// merges, then deletes both branches.
	ghClient := &MockGitHubClient{}
	vcs := newFakeVCS(preparedCommit(42))
	pr := openPR("spr/test/base")

	master := "main"
	ghClient.On("GetPullRequest", 42).Return(pr, nil)
	ghClient.On("UpdatePullRequest", 42, gh.PullRequestUpdate{Base: &master}).Return(nil).Once()
	ghClient.On("GetPullRequestMergeability", 42).Return(mergeable(), nil).Once()
	ghClient.On("MergePullRequest", 42, "Add widget cache", mock.Anything, headOID).
		Return(gh.MergeResult{Merged: true, OID: landedOID}, nil).Once()

	o, _ := newOrchestrator(landConfig(false), ghClient, vcs)
	require.NoError(t, o.Land(context.Background(), Options{}))
	ghClient.AssertExpectations(t)

	// The base branch got a merge commit of [base, master] with the merged
	// tree, pushed before the retarget.
	require.Len(t, vcs.derived, 1)
	assert.Equal(t, commitOID, vcs.derived[0].original)
	assert.Equal(t, mergedTree, vcs.derived[0].tree)
	assert.Equal(t, []string{baseOID, masterOID}, vcs.derived[0].parents)
	require.Len(t, vcs.pushes, 1)
	assert.Equal(t, pushRecord{oid: derivedOID, branch: "spr/test/base"}, vcs.pushes[0])

	// Cleanup removes both the head branch and the now-unused base branch.
	assert.ElementsMatch(t, []string{"spr/test/head", "spr/test/base"}, vcs.deletedBranches)
}

func TestLandRollsBackBaseOnMergeFailure(t *testing.T) {
	ghClient := &MockGitHubClient{}
	vcs := newFakeVCS(preparedCommit(42))
	pr := openPR("spr/test/base")

	master := "main"
	originalBase := "spr/test/base"
	ghClient.On("GetPullRequest", 42).Return(pr, nil)
	ghClient.On("UpdatePullRequest", 42, gh.PullRequestUpdate{Base: &master}).Return(nil).Once()
	ghClient.On("GetPullRequestMergeability", 42).Return(mergeable(), nil).Once()
	ghClient.On("MergePullRequest", 42, "Add widget cache", mock.Anything, headOID).
		Return(gh.MergeResult{}, fmt.Errorf("merge of pull request #42 failed: boom")).Once()
	ghClient.On("UpdatePullRequest", 42, gh.PullRequestUpdate{Base: &originalBase}).Return(nil).Once()

	o, _ := newOrchestrator(landConfig(false), ghClient, vcs)
	err := o.Land(context.Background(), Options{})
	require.Error(t, err)

	// Exactly one compensating update restoring the original base.
	ghClient.AssertExpectations(t)
	assert.Empty(t, vcs.deletedBranches, "no cleanup after a failed merge")
}

func TestLandRollbackFailureIsAppended(t *testing.T) {
	ghClient := &MockGitHubClient{}
	vcs := newFakeVCS(preparedCommit(42))
	pr := openPR("spr/test/base")

	master := "main"
	originalBase := "spr/test/base"
	ghClient.On("GetPullRequest", 42).Return(pr, nil)
	ghClient.On("UpdatePullRequest", 42, gh.PullRequestUpdate{Base: &master}).Return(nil).Once()
	ghClient.On("GetPullRequestMergeability", 42).Return(mergeable(), nil).Once()
	ghClient.On("MergePullRequest", 42, "Add widget cache", mock.Anything, headOID).
		Return(gh.MergeResult{Merged: false, Message: "merge rejected"}, nil).Once()
	ghClient.On("UpdatePullRequest", 42, gh.PullRequestUpdate{Base: &originalBase}).
		Return(fmt.Errorf("network unreachable")).Once()

	o, _ := newOrchestrator(landConfig(false), ghClient, vcs)
	err := o.Land(context.Background(), Options{})
	require.Error(t, err)

	opErr := errs.Convert(err)
	messages := opErr.Messages()
	require.Len(t, messages, 2, "root cause plus rollback failure, in order")
	assert.Contains(t, messages[0], "merge rejected")
	assert.Contains(t, messages[1], "restoring the pull request base")
	assert.Contains(t, messages[1], "network unreachable")
}

func TestLandCleanupFetchRetries(t *testing.T) {
	// Fetching the fresh merge commit fails on every attempt. The land
	// still succeeds: cleanup is best effort, bounded to three fetches.
	ghClient := &MockGitHubClient{}
	vcs := newFakeVCS(preparedCommit(42))
	pr := openPR("main")

	ghClient.On("GetPullRequest", 42).Return(pr, nil)
	ghClient.On("GetPullRequestMergeability", 42).Return(mergeable(), nil)
	ghClient.On("MergePullRequest", 42, "Add widget cache", mock.Anything, headOID).
		Return(gh.MergeResult{Merged: true, OID: landedOID}, nil)

	vcs.fetchErr = func(refs []string) error {
		for _, ref := range refs {
			if ref == landedOID {
				return fmt.Errorf("remote does not have it yet")
			}
		}
		return nil
	}

	o, _ := newOrchestrator(landConfig(false), ghClient, vcs)
	require.NoError(t, o.Land(context.Background(), Options{}))

	mergeFetches := 0
	for _, refs := range vcs.fetches {
		for _, ref := range refs {
			if ref == landedOID {
				mergeFetches++
			}
		}
	}
	assert.Equal(t, 3, mergeFetches)
	assert.Equal(t, []string{"spr/test/head"}, vcs.deletedBranches)
}
