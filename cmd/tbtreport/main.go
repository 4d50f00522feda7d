package main

import "github.com/lucastaliberti/analyze-chrome-trace/internal/cli"

func main() {
	cli.Execute()
}
