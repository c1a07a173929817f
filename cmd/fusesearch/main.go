// Command fusesearch indexes a codebase and serves hybrid search over it
// from the command line or as an MCP server.
package main

import (
	"os"

	"github.com/Aman-CERP/fusesearch/cmd/fusesearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
