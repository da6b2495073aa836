// Command ot runs declarative, Git-worktree-aware task workflows.
package main

import (
	"os"

	"github.com/shuntksh/openturbo/internal/cmd"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(cmd.RunWithArgs(os.Args[1:], version))
}
