// Package gh talks to GitHub. The Client interface is what the rest of the
// tool consumes; GitHub is the real implementation on the REST API.
package gh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/go-github/v32/github"
	"golang.org/x/oauth2"

	"github.com/jj-spr/jj-spr/internal/message"
)

// ErrNotFound is returned when a pull request does not exist.
var ErrNotFound = errors.New("pull request not found")

// Client is the remote service contract consumed by the commands and the
// land workflow.
type Client interface {
	GetPullRequest(ctx context.Context, number int) (*PullRequest, error)
	GetPullRequestMergeability(ctx context.Context, number int) (MergeabilityStatus, error)
	UpdatePullRequest(ctx context.Context, number int, update PullRequestUpdate) error
	MergePullRequest(ctx context.Context, number int, title, body, expectedHeadOID string) (MergeResult, error)

	CreatePullRequest(ctx context.Context, title, body, head, base string, draft bool) (*PullRequest, error)
	RequestReviewers(ctx context.Context, number int, reviewers []string) error
	CreateComment(ctx context.Context, number int, body string) error
	ListOpenPullRequests(ctx context.Context) ([]PullRequestSummary, error)
}

// GitHub implements Client against the GitHub REST API.
type GitHub struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHub creates an authenticated GitHub client for owner/repo.
func NewGitHub(ctx context.Context, owner, repo, token string) *GitHub {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &GitHub{
		client: github.NewClient(oauth2.NewClient(ctx, src)),
		owner:  owner,
		repo:   repo,
	}
}

// GetPullRequest fetches a pull request with its aggregate review status.
func (g *GitHub) GetPullRequest(ctx context.Context, number int) (*PullRequest, error) {
	pr, resp, err := g.client.PullRequests.Get(ctx, g.owner, g.repo, number)
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return nil, fmt.Errorf("pull request #%d: %w", number, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch pull request #%d: %w", number, err)
	}

	status, approvers, err := g.reviewStatus(ctx, number)
	if err != nil {
		return nil, err
	}

	sections := message.Parse(pr.GetTitle() + "\n\n" + pr.GetBody())

	return &PullRequest{
		Number:       pr.GetNumber(),
		State:        mapState(pr),
		ReviewStatus: status,
		Title:        pr.GetTitle(),
		Sections:     sections,
		BaseRef:      pr.GetBase().GetRef(),
		HeadRef:      pr.GetHead().GetRef(),
		HeadOID:      pr.GetHead().GetSHA(),
		Reviewers:    approvers,
	}, nil
}

// GetPullRequestMergeability observes GitHub's current mergeability answer.
// The answer may be unknown while GitHub is still computing it.
func (g *GitHub) GetPullRequestMergeability(ctx context.Context, number int) (MergeabilityStatus, error) {
	pr, _, err := g.client.PullRequests.Get(ctx, g.owner, g.repo, number)
	if err != nil {
		return MergeabilityStatus{}, fmt.Errorf("failed to check mergeability of #%d: %w", number, err)
	}

	mergeability := MergeabilityUnknown
	if pr.Mergeable != nil {
		if *pr.Mergeable {
			mergeability = MergeabilityMergeable
		} else {
			mergeability = MergeabilityConflicting
		}
	}

	return MergeabilityStatus{
		HeadOID:      pr.GetHead().GetSHA(),
		BaseRef:      pr.GetBase().GetRef(),
		Mergeability: mergeability,
	}, nil
}

// UpdatePullRequest applies a partial update; unset fields are unchanged.
func (g *GitHub) UpdatePullRequest(ctx context.Context, number int, update PullRequestUpdate) error {
	pr := &github.PullRequest{
		Title: update.Title,
		Body:  update.Body,
		State: update.State,
	}
	if update.Base != nil {
		pr.Base = &github.PullRequestBranch{Ref: update.Base}
	}

	_, _, err := g.client.PullRequests.Edit(ctx, g.owner, g.repo, number, pr)
	if err != nil {
		return fmt.Errorf("failed to update pull request #%d: %w", number, err)
	}
	return nil
}

// MergePullRequest squash-merges the pull request. expectedHeadOID guards
// against the head moving between validation and merge: GitHub rejects the
// merge if the head no longer matches.
func (g *GitHub) MergePullRequest(ctx context.Context, number int, title, body, expectedHeadOID string) (MergeResult, error) {
	result, _, err := g.client.PullRequests.Merge(ctx, g.owner, g.repo, number, body, &github.PullRequestOptions{
		CommitTitle: title,
		SHA:         expectedHeadOID,
		MergeMethod: "squash",
	})
	if err != nil {
		return MergeResult{}, fmt.Errorf("merge of pull request #%d failed: %w", number, err)
	}
	return MergeResult{
		Merged:  result.GetMerged(),
		OID:     result.GetSHA(),
		Message: result.GetMessage(),
	}, nil
}

// CreatePullRequest opens a new pull request.
func (g *GitHub) CreatePullRequest(ctx context.Context, title, body, head, base string, draft bool) (*PullRequest, error) {
	pr, _, err := g.client.PullRequests.Create(ctx, g.owner, g.repo, &github.NewPullRequest{
		Title: github.String(title),
		Body:  github.String(body),
		Head:  github.String(head),
		Base:  github.String(base),
		Draft: github.Bool(draft),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request: %w", err)
	}

	return &PullRequest{
		Number:   pr.GetNumber(),
		State:    mapState(pr),
		Title:    pr.GetTitle(),
		Sections: message.Parse(pr.GetTitle() + "\n\n" + pr.GetBody()),
		BaseRef:  pr.GetBase().GetRef(),
		HeadRef:  pr.GetHead().GetRef(),
		HeadOID:  pr.GetHead().GetSHA(),
	}, nil
}

// RequestReviewers asks the given users for review.
func (g *GitHub) RequestReviewers(ctx context.Context, number int, reviewers []string) error {
	if len(reviewers) == 0 {
		return nil
	}
	_, _, err := g.client.PullRequests.RequestReviewers(ctx, g.owner, g.repo, number, github.ReviewersRequest{
		Reviewers: reviewers,
	})
	if err != nil {
		return fmt.Errorf("failed to request reviewers for #%d: %w", number, err)
	}
	return nil
}

// CreateComment adds a comment to the pull request.
func (g *GitHub) CreateComment(ctx context.Context, number int, body string) error {
	_, _, err := g.client.Issues.CreateComment(ctx, g.owner, g.repo, number, &github.IssueComment{
		Body: github.String(body),
	})
	if err != nil {
		return fmt.Errorf("failed to comment on #%d: %w", number, err)
	}
	return nil
}

// ListOpenPullRequests lists open pull requests authored by the token user,
// newest first, with their review decision.
func (g *GitHub) ListOpenPullRequests(ctx context.Context) ([]PullRequestSummary, error) {
	me, _, err := g.client.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to identify authenticated user: %w", err)
	}

	var summaries []PullRequestSummary
	opts := &github.PullRequestListOptions{
		State:       "open",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		prs, resp, err := g.client.PullRequests.List(ctx, g.owner, g.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list pull requests: %w", err)
		}
		for _, pr := range prs {
			if pr.GetUser().GetLogin() != me.GetLogin() {
				continue
			}
			status, _, err := g.reviewStatus(ctx, pr.GetNumber())
			if err != nil {
				return nil, err
			}
			summaries = append(summaries, PullRequestSummary{
				Number:       pr.GetNumber(),
				Title:        pr.GetTitle(),
				BaseRef:      pr.GetBase().GetRef(),
				HeadRef:      pr.GetHead().GetRef(),
				ReviewStatus: status,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return summaries, nil
}

// reviewStatus aggregates the latest review per user into one decision.
// Any outstanding change request wins over approvals.
func (g *GitHub) reviewStatus(ctx context.Context, number int) (ReviewStatus, []string, error) {
	reviews, _, err := g.client.PullRequests.ListReviews(ctx, g.owner, g.repo, number, &github.ListOptions{PerPage: 100})
	if err != nil {
		return ReviewStatusNone, nil, fmt.Errorf("failed to list reviews for #%d: %w", number, err)
	}

	type latest struct {
		state string
		at    time.Time
	}
	byUser := map[string]latest{}
	for _, review := range reviews {
		state := review.GetState()
		if state != "APPROVED" && state != "CHANGES_REQUESTED" {
			continue
		}
		login := review.GetUser().GetLogin()
		if prev, ok := byUser[login]; !ok || review.GetSubmittedAt().After(prev.at) {
			byUser[login] = latest{state: state, at: review.GetSubmittedAt()}
		}
	}

	if len(byUser) == 0 {
		if len(reviews) > 0 {
			return ReviewStatusPending, nil, nil
		}
		return ReviewStatusNone, nil, nil
	}

	var approvers []string
	status := ReviewStatusApproved
	for login, review := range byUser {
		if review.state == "CHANGES_REQUESTED" {
			status = ReviewStatusChangesRequested
		} else {
			approvers = append(approvers, login)
		}
	}
	return status, approvers, nil
}

func mapState(pr *github.PullRequest) PullRequestState {
	if pr.GetMerged() {
		return PullRequestStateMerged
	}
	if pr.GetState() == "closed" {
		return PullRequestStateClosed
	}
	return PullRequestStateOpen
}
