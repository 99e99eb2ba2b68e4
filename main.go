// The main package for the nidus-scraper executable.
package main

import (
	"github.com/JakeFAU/nidus-scraper/cmd"
)

func main() {
	cmd.Execute()
}
