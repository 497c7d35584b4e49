// Command ironforge is the CLI client for a running IronForge API server.
package main

import (
	"fmt"
	"os"

	"github.com/samet-stack/ironforge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
