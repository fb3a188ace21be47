package types

import "time"

type LeaseStatus int

const (
	UnknownLeaseStatus LeaseStatus = 0
	ActiveLease        LeaseStatus = 1
	RevokedLease       LeaseStatus = 2
	ExpiredLease       LeaseStatus = 3
)

// Lease is the server side view of a lease. GrantedTTL is what the
// lease was granted with, TTL is what is left of it (both in seconds)
type Lease struct {
	ID         int64
	Status     LeaseStatus
	GrantedTTL int64
	TTL        int64
	ExpiresOn  time.Time
	Keys       []string
}

type ConnectionState int

const (
	Disconnected ConnectionState = 0
	Connected    ConnectionState = 1
)

func (s ConnectionState) String() string {
	switch s {
	case Connected:
		return "CONNECTED"
	case Disconnected:
		return "DISCONNECTED"
	}
	return "UNKNOWN"
}
