// Package eventlog implements the committed-state journal of the governance
// ledger: an append-only, hash-chained log of mint, burn, delegation and
// vote-change events.
//
// The chain begins with a well-known genesis entry whose Hash equals
// GenesisHash. Every later entry records the SHA-256 of its predecessor, so
// tampering is detectable via Verify. Blocks never decrease along the chain.
//
// Three implementations of the Log interface are provided:
//   - MemoryLog: in-process, for tests and ephemeral deployments.
//   - PostgresLog: durable, shared between instances.
//   - SQLiteLog: durable, single file, single instance.
package eventlog
