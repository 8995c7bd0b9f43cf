package main

import "github.com/nextlevelbuilder/claude-relay/cmd"

func main() {
	cmd.Execute()
}
