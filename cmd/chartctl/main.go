// Command chartctl validates chart documents, applies patch files offline
// and seeds user accounts.
package main

import (
	"os"

	"github.com/bizmatters/agent-builder/chart-studio/pkg/logger"
)

func main() {
	if err := logger.Init("info", "text"); err != nil {
		os.Exit(2)
	}
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
