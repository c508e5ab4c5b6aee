package jj

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jj-spr/jj-spr/internal/runner"
)

// Backend is the narrow capability interface over the revision-control
// command line. It exists so the adapter can be tested against an in-memory
// fake instead of parsing subprocess output in every call site.
type Backend interface {
	// Resolve resolves a revision expression to a single commit OID.
	Resolve(ctx context.Context, revision string) (string, error)

	// LogRange returns the commit OIDs between two revisions, in the
	// backend's native newest-first order. When inclusive is true the from
	// revision itself is part of the range.
	LogRange(ctx context.Context, from, to string, inclusive bool) ([]string, error)

	// Status returns the working copy status output.
	Status(ctx context.Context) (string, error)

	// ChangeID returns the stable change identifier for a commit. Rewriting
	// a commit changes its OID but not its change ID.
	ChangeID(ctx context.Context, commitOID string) (string, error)

	// Describe replaces the message of the commit identified by changeID.
	Describe(ctx context.Context, changeID, newMessage string) error
}

// jjBackend implements Backend by invoking the jj binary.
type jjBackend struct {
	run *runner.Runner
	bin string
}

// jjExecutable returns the jj binary to invoke. The JJ environment variable
// overrides the default.
func jjExecutable() string {
	if bin := os.Getenv("JJ"); bin != "" {
		return bin
	}
	return "jj"
}

// NewJujutsuBackend creates a Backend over the jj CLI. The binary can be
// overridden with the JJ environment variable.
func NewJujutsuBackend(run *runner.Runner) Backend {
	return &jjBackend{run: run, bin: jjExecutable()}
}

func (b *jjBackend) Resolve(ctx context.Context, revision string) (string, error) {
	out, err := b.run.Output(ctx, b.bin,
		"log", "--no-graph", "-r", revision, "--template", "commit_id")
	if err != nil {
		return "", &RevisionError{Revision: revision, Err: err}
	}
	oid := strings.TrimSpace(out)
	if !isCommitOID(oid) {
		return "", &RevisionError{
			Revision: revision,
			Err:      fmt.Errorf("jj returned %q, expected a single commit id", oid),
		}
	}
	return oid, nil
}

func (b *jjBackend) LogRange(ctx context.Context, from, to string, inclusive bool) ([]string, error) {
	operator := ".."
	if inclusive {
		operator = "::"
	}
	out, err := b.run.Output(ctx, b.bin,
		"log", "--no-graph",
		"-r", from+operator+to,
		"--template", `commit_id ++ "\n"`)
	if err != nil {
		return nil, &RevisionError{Revision: from + operator + to, Err: err}
	}

	var oids []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !isCommitOID(line) {
			return nil, &RevisionError{
				Revision: from + operator + to,
				Err:      fmt.Errorf("jj returned %q, expected a commit id", line),
			}
		}
		oids = append(oids, line)
	}
	return oids, nil
}

func (b *jjBackend) Status(ctx context.Context) (string, error) {
	return b.run.Output(ctx, b.bin, "status")
}

func (b *jjBackend) ChangeID(ctx context.Context, commitOID string) (string, error) {
	out, err := b.run.Output(ctx, b.bin,
		"log", "--no-graph", "-r", commitOID, "--template", "change_id")
	if err != nil {
		return "", fmt.Errorf("failed to get change id for %s: %w", commitOID, err)
	}
	return strings.TrimSpace(out), nil
}

func (b *jjBackend) Describe(ctx context.Context, changeID, newMessage string) error {
	if _, err := b.run.Run(ctx, b.bin, "describe", "-r", changeID, "-m", newMessage); err != nil {
		return fmt.Errorf("failed to update commit message: %w", err)
	}
	return nil
}

func isCommitOID(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
