// Package web3 houses blockchain connectivity for the treasury wallet: the
// chain client contract used to build, relay and confirm transfers, the
// multi-chain YAML definitions and an in-process ledger for development.
package web3
