package main

import "github.com/lepinkainen/tome/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
