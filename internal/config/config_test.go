package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testConfig() *Config {
	return New("acme", "widgets", "origin", "main", "spr/test/",
		false, true, false, true, false)
}

func TestRemoteBranchForms(t *testing.T) {
	cfg := testConfig()

	assert.Equal(t, "main", cfg.MasterRef.OnRemote())
	assert.Equal(t, "origin/main", cfg.MasterRef.Local())

	base := cfg.RemoteBranchNamed("spr/test/abcd1234")
	assert.Equal(t, "spr/test/abcd1234", base.OnRemote())
	assert.Equal(t, "origin/spr/test/abcd1234", base.Local())
}

func TestIsMasterBranch(t *testing.T) {
	cfg := testConfig()

	assert.True(t, cfg.IsMasterBranch("main"))
	assert.False(t, cfg.IsMasterBranch("master"))
	assert.False(t, cfg.IsMasterBranch("spr/test/abcd1234"))
}

func TestParsePullRequestField(t *testing.T) {
	cfg := testConfig()

	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{"bare number", "42", 42},
		{"hash number", "#42", 42},
		{"padded", "  #42  ", 42},
		{"own repo URL", "https://github.com/acme/widgets/pull/42", 42},
		{"own repo URL with trailing slash", "https://github.com/acme/widgets/pull/42/", 42},
		{"own repo files URL", "https://github.com/acme/widgets/pull/42/files", 42},
		{"other repo URL", "https://github.com/other/repo/pull/42", 0},
		{"empty", "", 0},
		{"garbage", "not a pull request", 0},
		{"non-numeric", "#abc", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cfg.ParsePullRequestField(tt.text))
		})
	}
}

func TestPullRequestURL(t *testing.T) {
	cfg := testConfig()
	url := cfg.PullRequestURL(7)

	assert.Equal(t, "https://github.com/acme/widgets/pull/7", url)
	assert.Equal(t, 7, cfg.ParsePullRequestField(url), "URL must round-trip through the parser")
}
