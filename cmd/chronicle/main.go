package main

import "github.com/rpattn/chronicle/internal/cli"

func main() {
	cli.Execute()
}
