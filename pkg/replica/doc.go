// Package replica hosts a single ledger behind the replica HTTP API: asset
// registration and transfer, NFC scan processing, ownership reads, integrity
// checks and stats. One process runs one replica on one port.
package replica
