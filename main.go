package main

import (
	"github.com/LumenWallet/lumen-core/cmd"
)

func main() {
	cmd.Execute()
}
