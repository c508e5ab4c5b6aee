// Package jj is the version-control adapter. It reads and writes commit
// objects through go-git's object store and drives the Jujutsu working copy
// through the Backend interface, mirroring how the tool treats the two
// layers: content-addressable storage versus change-oriented commands.
package jj

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/jj-spr/jj-spr/internal/config"
	"github.com/jj-spr/jj-spr/internal/message"
	"github.com/jj-spr/jj-spr/internal/runner"
)

// RevisionError reports a revision expression that could not be resolved.
type RevisionError struct {
	Revision string
	Err      error
}

func (e *RevisionError) Error() string {
	return fmt.Sprintf("failed to resolve revision %q: %v", e.Revision, e.Err)
}

func (e *RevisionError) Unwrap() error {
	return e.Err
}

// DirtyWorkingCopyError reports uncommitted changes in the working copy.
type DirtyWorkingCopyError struct {
	Status string
}

func (e *DirtyWorkingCopyError) Error() string {
	return "you have uncommitted changes:\n" + e.Status
}

// PreparedCommit is a transient snapshot of one local commit: its identity,
// its parsed message sections, and the pull request it links to. It is never
// persisted; the commit message is the only durable record.
type PreparedCommit struct {
	OID       string
	ShortID   string
	ParentOID string

	Message message.Sections

	// PullRequestNumber is 0 when the commit has no Pull Request section
	// matching the configured repository.
	PullRequestNumber int

	// MessageChanged is set when the in-memory message diverges from the
	// stored commit and cleared by a successful RewriteMessages.
	MessageChanged bool
}

// Title returns the commit's title section.
func (p *PreparedCommit) Title() string {
	return p.Message[message.SectionTitle]
}

// SetSection replaces one message section in memory and marks the commit as
// needing a rewrite. An empty text removes the section.
func (p *PreparedCommit) SetSection(section message.Section, text string) {
	if text == "" {
		if _, ok := p.Message[section]; !ok {
			return
		}
		delete(p.Message, section)
	} else {
		if p.Message[section] == text {
			return
		}
		p.Message[section] = text
	}
	p.MessageChanged = true
}

// CherryPickResult is the outcome of a three-way tree merge. Conflicts lists
// the conflicted paths; it is empty for a clean merge.
type CherryPickResult struct {
	TreeOID   string
	Conflicts []string
}

// Client is the version-control adapter.
type Client struct {
	repo    *gogit.Repository
	backend Backend
	run     *runner.Runner
}

// NewClient opens the repository containing dir. The repository must be a
// colocated Jujutsu repository (a .jj directory next to .git).
func NewClient(dir string, run *runner.Runner, backend Backend) (*Client, error) {
	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("not in a git repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("repository must have a working directory: %w", err)
	}
	root := worktree.Filesystem.Root()
	if _, err := os.Stat(filepath.Join(root, ".jj")); err != nil {
		return nil, fmt.Errorf("this is not a Jujutsu repository; run 'jj git init --colocate' to create one")
	}

	return &Client{repo: repo, backend: backend, run: run}, nil
}

// GetPreparedCommit resolves a revision expression to a PreparedCommit.
func (c *Client) GetPreparedCommit(ctx context.Context, cfg *config.Config, revision string) (*PreparedCommit, error) {
	oid, err := c.backend.Resolve(ctx, revision)
	if err != nil {
		return nil, err
	}
	return c.prepareCommit(cfg, oid)
}

// GetPreparedCommitRange resolves the commits between two revisions,
// ordered oldest first. The backend reports newest first; the reversal here
// is what stack operations rely on.
func (c *Client) GetPreparedCommitRange(ctx context.Context, cfg *config.Config, from, to string, inclusive bool) ([]*PreparedCommit, error) {
	oids, err := c.backend.LogRange(ctx, from, to, inclusive)
	if err != nil {
		return nil, err
	}

	commits := make([]*PreparedCommit, 0, len(oids))
	for i := len(oids) - 1; i >= 0; i-- {
		commit, err := c.prepareCommit(cfg, oids[i])
		if err != nil {
			return nil, err
		}
		commits = append(commits, commit)
	}
	return commits, nil
}

// GetStackCommits returns the commits on top of the integration tip up to
// and including revision, oldest first. The tip itself is excluded: it is
// already landed, and a stack based on an older tip would otherwise select
// nothing.
func (c *Client) GetStackCommits(ctx context.Context, cfg *config.Config, masterOID, revision string) ([]*PreparedCommit, error) {
	return c.GetPreparedCommitRange(ctx, cfg, masterOID, revision, false)
}

// CheckNoUncommittedChanges fails with a DirtyWorkingCopyError if the
// working copy has modifications.
func (c *Client) CheckNoUncommittedChanges(ctx context.Context) error {
	out, err := c.backend.Status(ctx)
	if err != nil {
		return err
	}
	trimmed := strings.TrimSpace(out)
	if trimmed == "" ||
		strings.Contains(out, "No changes.") ||
		strings.Contains(out, "The working copy has no changes") ||
		strings.Contains(out, "The working copy is clean") {
		return nil
	}
	return &DirtyWorkingCopyError{Status: trimmed}
}

// prepareCommit reads one commit from the object store and parses its
// message and pull request linkage.
func (c *Client) prepareCommit(cfg *config.Config, oid string) (*PreparedCommit, error) {
	commit, err := c.repo.CommitObject(plumbing.NewHash(oid))
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", oid, err)
	}

	parentOID := oid
	if len(commit.ParentHashes) > 0 {
		parentOID = commit.ParentHashes[0].String()
	}

	sections := message.Parse(commit.Message)
	number := 0
	if link, ok := sections[message.SectionPullRequest]; ok {
		number = cfg.ParsePullRequestField(link)
	}

	return &PreparedCommit{
		OID:               oid,
		ShortID:           oid[:7],
		ParentOID:         parentOID,
		Message:           sections,
		PullRequestNumber: number,
		// A stored message that is not in canonical section order gets
		// rewritten the next time messages are flushed.
		MessageChanged: message.Build(sections) != commit.Message,
	}, nil
}

// ResolveRevision resolves a local revision or ref name (e.g.
// "origin/main") to a commit OID through the object store.
func (c *Client) ResolveRevision(rev string) (string, error) {
	hash, err := c.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", &RevisionError{Revision: rev, Err: err}
	}
	return hash.String(), nil
}

// TreeOID returns the tree hash of a commit.
func (c *Client) TreeOID(commitOID string) (string, error) {
	commit, err := c.repo.CommitObject(plumbing.NewHash(commitOID))
	if err != nil {
		return "", fmt.Errorf("failed to read commit %s: %w", commitOID, err)
	}
	return commit.TreeHash.String(), nil
}

// CreateDerivedCommit builds a new commit reusing the original commit's
// author and committer identities but with the current time as both
// timestamps, so the derived commit sorts newest in GitHub's view.
func (c *Client) CreateDerivedCommit(originalOID, msg, treeOID string, parentOIDs []string) (string, error) {
	original, err := c.repo.CommitObject(plumbing.NewHash(originalOID))
	if err != nil {
		return "", fmt.Errorf("failed to read commit %s: %w", originalOID, err)
	}

	now := time.Now()
	parents := make([]plumbing.Hash, len(parentOIDs))
	for i, parent := range parentOIDs {
		parents[i] = plumbing.NewHash(parent)
	}

	commit := &object.Commit{
		Author: object.Signature{
			Name:  original.Author.Name,
			Email: original.Author.Email,
			When:  now,
		},
		Committer: object.Signature{
			Name:  original.Committer.Name,
			Email: original.Committer.Email,
			When:  now,
		},
		Message:      msg,
		TreeHash:     plumbing.NewHash(treeOID),
		ParentHashes: parents,
	}

	obj := c.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return "", fmt.Errorf("failed to encode commit: %w", err)
	}
	hash, err := c.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", fmt.Errorf("failed to write commit: %w", err)
	}
	return hash.String(), nil
}

// CherryPick replays commitOID's change onto ontoOID's tree with a
// three-way merge against the commit's own parent. Conflicts are returned,
// never resolved here.
func (c *Client) CherryPick(ctx context.Context, commitOID, ontoOID string) (CherryPickResult, error) {
	commit, err := c.prepareCommitParent(commitOID)
	if err != nil {
		return CherryPickResult{}, err
	}
	return c.mergeTree(ctx, "--merge-base="+commit, ontoOID, commitOID)
}

// SimulateMerge computes the tree of merging fromOID into intoOID, using
// git's own merge-base selection. This mirrors what GitHub computes when it
// merges a pull request branch.
func (c *Client) SimulateMerge(ctx context.Context, intoOID, fromOID string) (CherryPickResult, error) {
	return c.mergeTree(ctx, intoOID, fromOID)
}

func (c *Client) prepareCommitParent(commitOID string) (string, error) {
	commit, err := c.repo.CommitObject(plumbing.NewHash(commitOID))
	if err != nil {
		return "", fmt.Errorf("failed to read commit %s: %w", commitOID, err)
	}
	if len(commit.ParentHashes) == 0 {
		return commitOID, nil
	}
	return commit.ParentHashes[0].String(), nil
}

// mergeTree runs git merge-tree --write-tree and parses the resulting tree
// OID plus any conflicted paths. go-git has no three-way tree merge, so
// this one computation goes through the git binary.
func (c *Client) mergeTree(ctx context.Context, args ...string) (CherryPickResult, error) {
	full := append([]string{"merge-tree", "--write-tree", "--name-only", "--no-messages"}, args...)
	res, err := c.run.Run(ctx, "git", full...)
	if err != nil && res.ExitCode != 1 {
		// Exit code 1 means conflicts; anything else is a real failure.
		return CherryPickResult{}, err
	}

	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return CherryPickResult{}, fmt.Errorf("git merge-tree produced no output")
	}

	result := CherryPickResult{TreeOID: strings.TrimSpace(lines[0])}
	for _, line := range lines[1:] {
		if line = strings.TrimSpace(line); line != "" {
			result.Conflicts = append(result.Conflicts, line)
		}
	}
	return result, nil
}

// RewriteMessages flushes every prepared commit whose message changed back
// to the backend, addressing commits by change ID since rewriting alters
// the OID. It stops on the first failure; commits after the failure keep
// their MessageChanged flag, which is how callers observe partial
// application.
func (c *Client) RewriteMessages(ctx context.Context, commits []*PreparedCommit) error {
	for _, commit := range commits {
		if !commit.MessageChanged {
			continue
		}

		changeID, err := c.backend.ChangeID(ctx, commit.OID)
		if err != nil {
			return fmt.Errorf("failed to rewrite message of %s: %w", commit.ShortID, err)
		}
		if err := c.backend.Describe(ctx, changeID, message.Build(commit.Message)); err != nil {
			return fmt.Errorf("failed to rewrite message of %s: %w", commit.ShortID, err)
		}
		commit.MessageChanged = false
	}
	return nil
}

// Fetch fetches refs from the remote without writing FETCH_HEAD or tags.
func (c *Client) Fetch(ctx context.Context, remote string, refs ...string) error {
	args := append([]string{"fetch", "--no-write-fetch-head", "--no-tags", "--", remote}, refs...)
	if _, err := c.run.Run(ctx, "git", args...); err != nil {
		return fmt.Errorf("git fetch failed: %w", err)
	}
	return nil
}

// PushCommit force-pushes a commit to a branch on the remote.
func (c *Client) PushCommit(ctx context.Context, oid, remote, branch string) error {
	refspec := oid + ":refs/heads/" + branch
	if _, err := c.run.Run(ctx, "git", "push", "--no-verify", "--force", "--", remote, refspec); err != nil {
		return fmt.Errorf("failed to push %s to %s: %w", oid[:7], branch, err)
	}
	return nil
}

// IsAncestor reports whether ancestorOID is reachable from descendantOID.
func (c *Client) IsAncestor(ancestorOID, descendantOID string) (bool, error) {
	ancestor, err := c.repo.CommitObject(plumbing.NewHash(ancestorOID))
	if err != nil {
		return false, fmt.Errorf("failed to read commit %s: %w", ancestorOID, err)
	}
	descendant, err := c.repo.CommitObject(plumbing.NewHash(descendantOID))
	if err != nil {
		return false, fmt.Errorf("failed to read commit %s: %w", descendantOID, err)
	}
	return ancestor.IsAncestor(descendant)
}

// CheckoutCommit puts the working copy on a new change on top of the given
// commit.
func (c *Client) CheckoutCommit(ctx context.Context, oid string) error {
	if _, err := c.run.Run(ctx, jjExecutable(), "new", oid); err != nil {
		return fmt.Errorf("failed to check out %s: %w", oid[:7], err)
	}
	return nil
}

// Waiter joins a process that was started without waiting.
type Waiter interface {
	Wait() error
}

// DeleteRemoteBranchAsync starts a branch deletion on the remote without
// waiting for it. The caller joins it with Wait.
func (c *Client) DeleteRemoteBranchAsync(ctx context.Context, remote, branch string) (Waiter, error) {
	return c.run.Start(ctx, "git", "push", "--no-verify", "--delete", "--", remote, branch)
}
