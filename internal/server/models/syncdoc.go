package models

import "time"

// SyncDocumentID is the primary key of the singleton sync document row.
const SyncDocumentID = 1

// SyncDocument is the shared, client-encrypted document. Version 0 means
// it was never written.
type SyncDocument struct {
	CipherText string
	Version    int64
	UpdatedAt  time.Time
}
