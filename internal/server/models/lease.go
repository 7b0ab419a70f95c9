package models

import "time"

// Lease is one user's claim on one external resource (account).
type Lease struct {
	ResourceID    string
	HolderUserID  int64
	LastRenewedAt time.Time
}

// Active reports whether the lease was renewed within ttl of now.
func (l Lease) Active(now time.Time, ttl time.Duration) bool {
	return now.Sub(l.LastRenewedAt) < ttl
}

// Occupancy is an active lease joined with its holder's name, as shown
// to clients.
type Occupancy struct {
	ResourceID   string
	HolderUserID int64
	HolderName   string
}
