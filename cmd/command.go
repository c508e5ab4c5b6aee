package cmd

import "github.com/spf13/cobra"

// Command is a jj-spr subcommand. Each one wires its own flags and clients
// when it registers itself.
type Command interface {
	// Register adds the subcommand and its flags to parent
	Register(parent *cobra.Command)
}
