// Package governance implements stake-weighted proposal voting, the
// arbitration flow that feeds dispute-resolution proposals, and the periodic
// sweep that closes proposals whose voting window has elapsed.
//
// Closing a proposal only decides its outcome. Applying a passed proposal is
// a separate, idempotent step handed to a Dispatcher, either inline or via
// the command queue in package dispatch.
package governance
