// Command evl is EVL's command-line surface, an alternative to the
// host message protocol for running scripts from a terminal or a
// build pipeline.
package main

import (
	"os"

	"github.com/evl-lang/evl/cmd/evl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
