// ./main.go
package main

import (
	"github.com/kamanpsyga/xiaoriziyouxi/cmd"
)

// main is the entry point for the renewal CLI.
func main() {
	// Execute the root command defined in the cmd package.
	// Command-line parsing, configuration, and execution happen there.
	cmd.Execute()
}
