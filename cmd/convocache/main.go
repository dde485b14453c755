// Package main provides the entry point for the convocache CLI.
package main

import (
	"github.com/colthorp/convocache/internal/cli"
)

func main() {
	cli.Execute()
}
