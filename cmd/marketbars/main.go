package main

import "github.com/Sternrassler/marketbars/internal/cli"

var version = "dev" // set with -ldflags "-X main.version=..."

func main() {
	cli.Execute(version)
}
