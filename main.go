// notemap lays out note graphs with a force-directed simulation.
//
// It imports linked notes into a local store, extracts the neighbourhood
// of a note and serves live layouts over HTTP and MCP.
package main

import (
	"fmt"
	"os"

	"github.com/Benny93/notemap/cmd"
)

func main() {
	cli := cmd.NewCLI()

	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
