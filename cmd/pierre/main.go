// Package main is the entry point for the Pierre fitness gateway.
package main

import (
	"os"

	"github.com/pgrlq7/pierre-mcp-server-sub000/cmd/pierre/app"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
