// Package chain talks to the custody contract and token contracts of the
// configured networks. It reads the wallet's on-chain and custody balances
// and submits deposits; the coordinator credits deposits to the ledger once
// it observes them.
package chain
