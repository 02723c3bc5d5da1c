// Package deposit sequences the multi-step flows that move funds into the
// coordinator's ledger: on-chain deposits into custody and faucet top-ups.
//
// Neither flow gets a confirmation from the coordinator. After the primary
// side effect the orchestrator waits a settlement delay, then refreshes the
// wallet and ledger balance views. Progress is published as notify.Phase
// events so a UI can render every intermediate step.
package deposit
