package main

import "github.com/mwalcott/keystep/cmd/keystep/cmd"

func main() {
	cmd.Execute()
}
