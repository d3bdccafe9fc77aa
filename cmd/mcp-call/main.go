package main

import "github.com/localrivet/mcpcontent/internal/cli"

func main() {
	cli.Execute()
}
