// Package config holds the per-invocation settings shared by every
// component. A Config is constructed once at startup from the VCS config
// store and is read-only afterwards.
package config

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jj-spr/jj-spr/internal/runner"
)

// RemoteBranch is a branch on the GitHub remote, usable in both its
// remote-canonical form ("main", what the GitHub API reports) and its local
// tracking form ("origin/main", what git resolves locally).
type RemoteBranch struct {
	Remote string
	Name   string
}

// OnRemote returns the branch name as GitHub knows it.
func (b RemoteBranch) OnRemote() string {
	return b.Name
}

// Local returns the remote-tracking form resolvable in the local repository.
func (b RemoteBranch) Local() string {
	return b.Remote + "/" + b.Name
}

// Config is the immutable per-invocation configuration.
type Config struct {
	Owner      string
	Repo       string
	RemoteName string

	// MasterRef is the integration branch pull requests land into.
	MasterRef RemoteBranch

	// BranchPrefix is prepended to generated pull request head branches.
	BranchPrefix string

	RequireApproval  bool
	RequireTestPlan  bool
	AddReviewedBy    bool
	AddBannerCommit  bool
	AddSkipCiComment bool
}

// New assembles a Config from resolved settings.
func New(owner, repo, remoteName, masterBranch, branchPrefix string,
	requireApproval, requireTestPlan, addReviewedBy, addBannerCommit, addSkipCiComment bool,
) *Config {
	return &Config{
		Owner:            owner,
		Repo:             repo,
		RemoteName:       remoteName,
		MasterRef:        RemoteBranch{Remote: remoteName, Name: masterBranch},
		BranchPrefix:     branchPrefix,
		RequireApproval:  requireApproval,
		RequireTestPlan:  requireTestPlan,
		AddReviewedBy:    addReviewedBy,
		AddBannerCommit:  addBannerCommit,
		AddSkipCiComment: addSkipCiComment,
	}
}

// IsMasterBranch reports whether name (remote-canonical form) is the
// integration branch.
func (c *Config) IsMasterBranch(name string) bool {
	return name == c.MasterRef.OnRemote()
}

// RemoteBranchNamed returns name as a RemoteBranch on the configured remote.
func (c *Config) RemoteBranchNamed(name string) RemoteBranch {
	return RemoteBranch{Remote: c.RemoteName, Name: name}
}

// PullRequestURL returns the canonical URL for a pull request number.
func (c *Config) PullRequestURL(number int) string {
	return fmt.Sprintf("https://github.com/%s/%s/pull/%d", c.Owner, c.Repo, number)
}

var pullRequestFieldRegex = regexp.MustCompile(`^\s*#?(\d+)\s*$`)

// ParsePullRequestField extracts a pull request number from the Pull Request
// section of a commit message. Accepted forms: a bare number, "#N", or a
// full pull request URL for the configured owner/repo. Returns 0 when the
// text does not reference a pull request of this repository.
func (c *Config) ParsePullRequestField(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	if m := pullRequestFieldRegex.FindStringSubmatch(text); m != nil {
		number, _ := strconv.Atoi(m[1])
		return number
	}

	prefix := fmt.Sprintf("https://github.com/%s/%s/pull/", c.Owner, c.Repo)
	rest, ok := strings.CutPrefix(text, prefix)
	if !ok {
		return 0
	}
	rest = strings.TrimSuffix(strings.TrimSuffix(rest, "/"), "/files")
	number, err := strconv.Atoi(rest)
	if err != nil {
		return 0
	}
	return number
}

var repositoryRegex = regexp.MustCompile(`^([\w\-.]+)/([\w\-.]+)$`)

// configReader resolves a key from the VCS config store. jj config is
// consulted first, then git config, so repo-level jj settings win.
type configReader struct {
	run *runner.Runner
}

func (r configReader) get(ctx context.Context, key string) string {
	if out, err := r.run.Output(ctx, "jj", "config", "get", key); err == nil && out != "" {
		return out
	}
	out, err := r.run.Output(ctx, "git", "config", "--get", key)
	if err != nil {
		return ""
	}
	return out
}

func (r configReader) getBool(ctx context.Context, key string, fallback bool) bool {
	switch strings.ToLower(r.get(ctx, key)) {
	case "true", "yes", "on", "1":
		return true
	case "false", "no", "off", "0":
		return false
	default:
		return fallback
	}
}

// Load reads the configuration from the jj/git config store.
func Load(ctx context.Context, run *runner.Runner) (*Config, error) {
	r := configReader{run: run}

	repository := r.get(ctx, "spr.githubRepository")
	if repository == "" {
		return nil, fmt.Errorf("spr.githubRepository must be configured (e.g. 'acme/widgets')")
	}
	m := repositoryRegex.FindStringSubmatch(repository)
	if m == nil {
		return nil, fmt.Errorf("GitHub repository must be given as 'OWNER/REPO', but given value was '%s'", repository)
	}

	branchPrefix := r.get(ctx, "spr.branchPrefix")
	if branchPrefix == "" {
		return nil, fmt.Errorf("spr.branchPrefix must be configured")
	}

	remoteName := r.get(ctx, "spr.githubRemoteName")
	if remoteName == "" {
		remoteName = "origin"
	}
	masterBranch := r.get(ctx, "spr.githubMasterBranch")
	if masterBranch == "" {
		masterBranch = "main"
	}

	return New(
		m[1], m[2], remoteName, masterBranch, branchPrefix,
		r.getBool(ctx, "spr.requireApproval", false),
		r.getBool(ctx, "spr.requireTestPlan", true),
		r.getBool(ctx, "spr.addReviewedBy", false),
		r.getBool(ctx, "spr.addBannerCommit", true),
		r.getBool(ctx, "spr.addSkipCiComment", false),
	), nil
}

// AuthToken returns the configured GitHub token, or "" if unset.
func AuthToken(ctx context.Context, run *runner.Runner) string {
	return configReader{run: run}.get(ctx, "spr.githubAuthToken")
}
