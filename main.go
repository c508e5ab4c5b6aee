package main

import (
	"context"

	"github.com/jj-spr/jj-spr/cmd"
)

func main() {
	ctx := context.Background()
	cmd.Execute(ctx)
}
