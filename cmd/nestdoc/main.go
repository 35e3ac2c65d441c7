package main

import "github.com/jacentio/nestdoc/internal/cli"

func main() {
	cli.Execute()
}
