// Package credential issues commitment/nullifier credentials, builds proofs
// against the per-schema accumulator and verifies them.
//
// The proof object is a structurally shaped stand-in tagged groth16/bn128
// and filled with random field elements. It is NOT a zero-knowledge proof:
// verification checks the nullifier is known for the schema, the root
// matches the current accumulator and the tags are as expected. Nullifiers
// are not marked as consumed, so a credential can be proved repeatedly.
package credential
