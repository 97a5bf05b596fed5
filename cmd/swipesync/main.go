package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jdziat/swipe-sync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "swipesync:", err)
		os.Exit(1)
	}
}
