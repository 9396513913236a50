package main

import (
	"fmt"
	"os"

	"github.com/danmuck/spilink/internal/logging"
)

func main() {
	logging.ConfigureRuntime()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "spilinkd: %v\n", err)
		os.Exit(1)
	}
}
