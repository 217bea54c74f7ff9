// Package registry holds the agent, dispute, service and payment records the
// governance, multisig and credential services read and mutate. The records
// are owned by the wider marketplace; this package only exposes the narrow
// read and write operations the threshold services need.
package registry
