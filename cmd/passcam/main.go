package main

import "github.com/cjeanneret/passcam/cmd/passcam/cmd"

func main() {
	cmd.Execute()
}
