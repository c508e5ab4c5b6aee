package gh

import (
	"github.com/jj-spr/jj-spr/internal/message"
)

// PullRequestState is the lifecycle state of a pull request.
type PullRequestState int

const (
	PullRequestStateOpen PullRequestState = iota
	PullRequestStateClosed
	PullRequestStateMerged
)

func (s PullRequestState) String() string {
	switch s {
	case PullRequestStateOpen:
		return "open"
	case PullRequestStateClosed:
		return "closed"
	case PullRequestStateMerged:
		return "merged"
	default:
		return "unknown"
	}
}

// ReviewStatus is the aggregate review decision on a pull request.
type ReviewStatus int

const (
	ReviewStatusNone ReviewStatus = iota
	ReviewStatusPending
	ReviewStatusApproved
	ReviewStatusChangesRequested
)

func (s ReviewStatus) String() string {
	switch s {
	case ReviewStatusApproved:
		return "approved"
	case ReviewStatusChangesRequested:
		return "changes requested"
	case ReviewStatusPending:
		return "pending"
	default:
		return "no reviews"
	}
}

// Mergeability is GitHub's asynchronously computed answer to whether a pull
// request can be merged cleanly. It stays Unknown until the computation
// finishes.
type Mergeability int

const (
	MergeabilityUnknown Mergeability = iota
	MergeabilityMergeable
	MergeabilityConflicting
)

// PullRequest is a snapshot of a pull request as read from GitHub.
type PullRequest struct {
	Number       int
	State        PullRequestState
	ReviewStatus ReviewStatus

	Title string
	// Sections is the structured body, keyed like a commit message. The
	// Title section mirrors the pull request title.
	Sections message.Sections

	// BaseRef and HeadRef are remote-canonical branch names.
	BaseRef string
	HeadRef string

	// HeadOID is the commit the head branch points at.
	HeadOID string

	// Reviewers holds the logins of users whose latest review approved the
	// pull request.
	Reviewers []string
}

// MergeabilityStatus is the result of one mergeability observation.
// Mergeability is only trustworthy while HeadOID still matches the pull
// request's current head.
type MergeabilityStatus struct {
	HeadOID      string
	BaseRef      string
	Mergeability Mergeability
}

// PullRequestUpdate is a partial update; nil fields are left unchanged.
type PullRequestUpdate struct {
	Title *string
	Body  *string
	Base  *string
	State *string
}

// MergeResult is GitHub's response to a merge call.
type MergeResult struct {
	Merged  bool
	OID     string
	Message string
}

// PullRequestSummary is one row of the open pull request listing.
type PullRequestSummary struct {
	Number       int
	Title        string
	BaseRef      string
	HeadRef      string
	ReviewStatus ReviewStatus
}
