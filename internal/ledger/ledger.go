// Package ledger defines the durable claims ledger collaborator.
//
// The ledger is the authoritative record of claimed territory. The engine
// only reads it (through the territory cache); claim persistence is invoked
// by the API layer when an accepted loop closure is surfaced.
package ledger

import (
	"context"
	"time"
)

// Claim is one accepted loop closure.
type Claim struct {
	ID        string
	UserID    string
	SessionID string
	AreaM2    float64
	Cells     []string
	ClaimedAt time.Time
}

// ClaimLedger persists accepted claims and reports a player's confirmed
// territory.
type ClaimLedger interface {
	// FetchClaimedCells returns the union of cell identifiers across all of
	// the user's claims. A user with no claims yields an empty slice.
	FetchClaimedCells(ctx context.Context, userID string) ([]string, error)
	// AppendClaim records an accepted claim. Claims are append-only;
	// territory never shrinks through the ledger.
	AppendClaim(ctx context.Context, claim Claim) error
}
