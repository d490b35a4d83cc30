package main

import "github.com/lepinkainen/shelfsource/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
