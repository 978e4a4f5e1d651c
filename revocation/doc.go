// Package revocation defines the persistence contract tokengate requires
// from its revocation ledger, plus an in-process implementation.
//
// The ledger is the side channel that makes early invalidation of otherwise
// self-contained tokens possible: every validation consults it, every logout
// or administrative suspension writes to it. Implementations must provide
// read-your-writes consistency within a single process; once RecordRevocation
// returns, subsequent IsTokenRevoked calls on the same store observe the
// write. Cross-node consistency is the backing store's responsibility.
//
// Durable adapters live in the redisstore and pgstore subpackages.
package revocation
