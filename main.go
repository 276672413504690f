package main

import "github.com/inkwell-labs/loom/cmd"

func main() {
	cmd.Execute()
}
