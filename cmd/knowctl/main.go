// Package main provides the knowctl operator CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
