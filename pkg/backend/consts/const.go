package consts

import "time"

const (
	// btree degree for the key index
	IndexDegree = 32

	// how many events the store keeps for watchers. watches starting
	// before the oldest kept event get a compacted error
	DefaultMaxEventCount = 10000

	// how often expired leases are collected
	LeaseCheckInterval = 500 * time.Millisecond

	// leases asking for less get this (seconds)
	MinLeaseTTL = int64(1)

	// first lease id handed out when the client does not choose one
	FirstLeaseID = int64(0x694d71ddd7a6d00)

	// lock keys are <name>/<lease id in hex>
	LockKeyFormat = "%s/%x"
)
