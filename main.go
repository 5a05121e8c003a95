// The main package for the medusa-deploy executable.
package main

import (
	"github.com/JakeFAU/medusa-deploy/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
