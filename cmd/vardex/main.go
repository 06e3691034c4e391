package main

import (
	"github.com/vardex/vardex/lib/cli"
)

func main() {
	cli.Main()
}
