package main

import (
	// Embedded zone database so timezone config resolves on minimal images.
	_ "time/tzdata"

	"pocket-trading-bot/internal/cli"
)

func main() {
	cli.Execute()
}
