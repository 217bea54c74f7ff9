// Package multisig implements the threshold wallet: an n-of-m co-signing
// ledger that collects raw secp256k1 signatures over one serialized transfer
// and relays it to the chain once the wallet threshold is reached.
//
// Signatures are not aggregated. Broadcast failures are terminal: the
// transaction is cancelled, the collected signatures are discarded and an
// alert is raised.
package multisig
