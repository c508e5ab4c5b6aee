// Package common wires up the clients commands share.
package common

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/jj-spr/jj-spr/internal/config"
	"github.com/jj-spr/jj-spr/internal/gh"
	"github.com/jj-spr/jj-spr/internal/jj"
	"github.com/jj-spr/jj-spr/internal/runner"
)

// Clients bundles everything a command needs to talk to the local
// repository and to GitHub.
type Clients struct {
	Run    *runner.Runner
	Config *config.Config
	JJ     *jj.Client
	GitHub gh.Client
}

// InitClients builds the client bundle for the current working directory.
// Returns an error suitable for use in PreRunE hooks.
func InitClients(ctx context.Context) (*Clients, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	run := runner.New(cwd)

	cfg, err := config.Load(ctx, run)
	if err != nil {
		return nil, err
	}

	jjClient, err := jj.NewClient(cwd, run, jj.NewJujutsuBackend(run))
	if err != nil {
		return nil, fmt.Errorf("not in a Jujutsu repository: %w", err)
	}

	token := config.AuthToken(ctx, run)
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		return nil, fmt.Errorf("no GitHub token configured; set spr.githubAuthToken or GITHUB_TOKEN")
	}
	ghClient := gh.NewGitHub(ctx, cfg.Owner, cfg.Repo, token)

	return &Clients{
		Run:    run,
		Config: cfg,
		JJ:     jjClient,
		GitHub: ghClient,
	}, nil
}

// GenerateBranchName produces a fresh pull request head branch name under
// the configured prefix. The 16-character hex tag keeps names unique without
// leaking commit titles into ref names.
func GenerateBranchName(cfg *config.Config) string {
	u := uuid.New()
	hexStr := strings.ReplaceAll(u.String(), "-", "")
	return cfg.BranchPrefix + hexStr[:16]
}
