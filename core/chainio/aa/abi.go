package aa

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Minimal ABI fragments for the three contracts the pipeline talks to. We only
// carry the methods we call; full generated bindings would drag in thousands
// of lines the wallet never touches.
const (
	accountABIJSON = `[
		{"type":"function","name":"execute","inputs":[
			{"name":"dest","type":"address"},
			{"name":"value","type":"uint256"},
			{"name":"func","type":"bytes"}]},
		{"type":"function","name":"executeBatch","inputs":[
			{"name":"dest","type":"address[]"},
			{"name":"value","type":"uint256[]"},
			{"name":"func","type":"bytes[]"}]}
	]`

	factoryABIJSON = `[
		{"type":"function","name":"createAccount","inputs":[
			{"name":"owner","type":"address"},
			{"name":"salt","type":"uint256"}],
			"outputs":[{"name":"ret","type":"address"}]},
		{"type":"function","name":"getAddress","stateMutability":"view","inputs":[
			{"name":"owner","type":"address"},
			{"name":"salt","type":"uint256"}],
			"outputs":[{"name":"","type":"address"}]}
	]`

	entrypointABIJSON = `[
		{"type":"function","name":"getNonce","stateMutability":"view","inputs":[
			{"name":"sender","type":"address"},
			{"name":"key","type":"uint192"}],
			"outputs":[{"name":"nonce","type":"uint256"}]}
	]`
)

var (
	accountABI    abi.ABI
	factoryABI    abi.ABI
	entrypointABI abi.ABI
)

func init() {
	accountABI = mustParseABI("account", accountABIJSON)
	factoryABI = mustParseABI("factory", factoryABIJSON)
	entrypointABI = mustParseABI("entrypoint", entrypointABIJSON)
}

func mustParseABI(name, body string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(body))
	if err != nil {
		panic(fmt.Errorf("invalid %s ABI: %w", name, err))
	}
	return parsed
}
