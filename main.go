package main

import "github.com/plugkit/matrixgen/cmd"

func main() {
	cmd.Execute()
}
