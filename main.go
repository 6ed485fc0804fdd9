package main

import "github.com/agentic-research/cdmctl/cmd"

func main() {
	cmd.Execute()
}
