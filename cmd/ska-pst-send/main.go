// Package main is the entry point for the ska-pst-send CLI.
package main

import (
	"github.com/ska-telescope/ska-pst-send/cmd/ska-pst-send/cmd"
)

func main() {
	cmd.Execute()
}
