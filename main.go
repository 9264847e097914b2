// The main package for the articlepicker executable.
package main

import (
	"github.com/JakeFAU/article-picker/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
