package main

import (
	"fmt"
	"os"

	"github.com/ieee0824/twopass/internal/cli"
)

const version = "0.1.0"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
