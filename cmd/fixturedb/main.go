package main

import "github.com/go-arrower/fixturedb/internal/cli"

func main() {
	cli.Execute()
}
