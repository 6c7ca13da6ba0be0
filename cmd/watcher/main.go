package main

import "github.com/stellarstream/watcher/internal/cli"

func main() {
	cli.Execute()
}
