package main

import "github.com/YuminosukeSato/soilspec/internal/cli"

func main() {
	cli.Execute()
}
