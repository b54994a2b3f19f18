package main

import "github.com/janw/rtscope/cmd"

func main() {
	cmd.Execute()
}
