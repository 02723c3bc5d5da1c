package chain

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const custodyABI = `[
	{"type":"function","name":"deposit","stateMutability":"payable","inputs":[{"name":"account","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"getAccountsBalances","stateMutability":"view","inputs":[{"name":"accounts","type":"address[]"},{"name":"tokens","type":"address[]"}],"outputs":[{"name":"","type":"uint256[][]"}]}
]`

var (
	erc20Once   sync.Once
	erc20Parsed abi.ABI

	custodyOnce   sync.Once
	custodyParsed abi.ABI
)

func erc20Contract() abi.ABI {
	erc20Once.Do(func() {
		erc20Parsed = mustParseABI(erc20ABI)
	})
	return erc20Parsed
}

func custodyContract() abi.ABI {
	custodyOnce.Do(func() {
		custodyParsed = mustParseABI(custodyABI)
	})
	return custodyParsed
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
