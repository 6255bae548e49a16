package main

import "github.com/oshokin/wrs-builder/cmd/wrs-builder/cmd"

func main() {
	cmd.Execute()
}
