// Package accumulator keeps the append-only commitment lists backing each
// credential schema and derives Merkle roots and inclusion paths from them.
//
// Leaves are hex encoded. A parent is sha256(left || right) over the raw
// bytes; an odd node at the end of a level is paired with itself. The root
// of an empty list is 32 zero bytes and the root of a single leaf is the
// leaf itself.
package accumulator
