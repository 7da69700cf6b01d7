// Command pharmabot is the entry point for the pharmacy question-answering
// assistant. It provides a CLI (via Cobra) for one-shot questions, corpus
// ingestion and history maintenance, and an HTTP server for chat clients.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/pharmabot/cmd/pharmabot/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
