package land

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/jj-spr/jj-spr/internal/gh"
)

// MockGitHubClient mocks the remote service for land tests.
type MockGitHubClient struct {
	mock.Mock
}

// GetPullRequest implements GitHubClient.
func (m *MockGitHubClient) GetPullRequest(ctx context.Context, number int) (*gh.PullRequest, error) {
	args := m.Called(number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gh.PullRequest), args.Error(1)
}

// GetPullRequestMergeability implements GitHubClient.
func (m *MockGitHubClient) GetPullRequestMergeability(ctx context.Context, number int) (gh.MergeabilityStatus, error) {
	args := m.Called(number)
	return args.Get(0).(gh.MergeabilityStatus), args.Error(1)
}

// UpdatePullRequest implements GitHubClient.
func (m *MockGitHubClient) UpdatePullRequest(ctx context.Context, number int, update gh.PullRequestUpdate) error {
	args := m.Called(number, update)
	return args.Error(0)
}

// MergePullRequest implements GitHubClient.
func (m *MockGitHubClient) MergePullRequest(ctx context.Context, number int, title, body, expectedHeadOID string) (gh.MergeResult, error) {
	args := m.Called(number, title, body, expectedHeadOID)
	return args.Get(0).(gh.MergeResult), args.Error(1)
}
