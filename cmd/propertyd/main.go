package main

import (
	"os"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
