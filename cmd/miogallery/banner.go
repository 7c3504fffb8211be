package main

import (
	"fmt"

	"github.com/fatih/color"
)

const asciiLogo = `
            _
  _ __ ___ (_) ___
 | '_ ` + "`" + ` _ \| |/ _ \
 | | | | | | | (_) |
 |_| |_| |_|_|\___/
`

func printBanner() {
	magenta := color.New(color.FgHiMagenta, color.Bold).SprintFunc()
	cyan := color.New(color.FgHiCyan, color.Bold).SprintFunc()
	white := color.New(color.FgWhite).SprintFunc()

	fmt.Println(magenta(asciiLogo))
	fmt.Printf("%s : %s\n", cyan("Project    "), white("Mio Gallery"))
	fmt.Printf("%s : %s\n", cyan("About      "), white("Self-hosted photo gallery with a filesystem-first design"))
	fmt.Println()
}
