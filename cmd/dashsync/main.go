package main

import "github.com/HMasataka/dashsync/cmd/dashsync/cmd"

func main() {
	cmd.Execute()
}
