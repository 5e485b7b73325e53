package storage

import "clipsync/internal/account"

// accountRecord is the on-disk JSON envelope for one account.
type accountRecord struct {
	Version string           `json:"version"`
	Account *account.Account `json:"account"`
}
