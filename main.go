// The main package for the maxscroll executable.
package main

import (
	"github.com/JakeFAU/maxscroll/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
