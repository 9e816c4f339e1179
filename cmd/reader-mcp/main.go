// Command reader-mcp exposes the reader daemon to MCP clients over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("READER_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8787"
	}
	// Optional: the daemon runs without auth by default.
	apiKey := os.Getenv("READER_API_KEY")

	s := newServer(newAPIClient(apiURL, apiKey))
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
