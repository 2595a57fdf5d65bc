package main

import "github.com/bryanwahyu/automaton-a11y/internal/cli"

func main() {
	cli.Execute()
}
