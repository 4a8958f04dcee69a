package main

import "volttest/internal/cli"

func main() {
	cli.Execute()
}
