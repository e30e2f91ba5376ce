// Package main is the entry point for the vidsheet CLI.
package main

import "github.com/tmorran/vidsheet/cmd"

func main() {
	cmd.Execute()
}
