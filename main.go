// The main package for the mcpindex executable.
package main

import (
	"github.com/JakeFAU/mcpindex/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
