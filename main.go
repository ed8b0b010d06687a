package main

import "github.com/avaestate/ava-agent/cmd"

func main() {
	cmd.Execute()
}
