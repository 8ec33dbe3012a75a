// The main package for the irccrawler executable.
package main

import (
	"github.com/JakeFAU/irc-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
