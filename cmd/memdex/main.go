package main

import "github.com/localmem/memdex/internal/cli"

func main() {
	cli.Execute()
}
