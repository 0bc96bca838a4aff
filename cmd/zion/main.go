package main

import (
	"os"

	"github.com/wonny/zion/cmd/zion/commands"
)

// main is the entry point for the zion CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/zion [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
