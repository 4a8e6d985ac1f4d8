package aa

import (
	"github.com/ethereum/go-ethereum/common"
)

var (
	// EntrypointAddress is the canonical EntryPoint v0.6 deployment, identical
	// on every chain we support.
	EntrypointAddress = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")

	factoryAddress = common.HexToAddress("0x9406Cc6185a346906296840746125a0E44976454")
)

func SetFactoryAddress(address common.Address) {
	factoryAddress = address
}

func FactoryAddress() common.Address {
	return factoryAddress
}

func SetEntrypointAddress(address common.Address) {
	EntrypointAddress = address
}
