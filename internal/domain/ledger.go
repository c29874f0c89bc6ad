package domain

import (
	"fmt"
	"time"
)

// Movement types.
const (
	MovementIn         = "in"
	MovementOut        = "out"
	MovementAdjustment = "adjustment"
)

// Movement reasons recorded on ledger entries.
const (
	ReasonOrderPlaced    = "order placed"
	ReasonOrderShipped   = "order shipped"
	ReasonOrderCancelled = "order cancelled"
	ReasonOrderRefunded  = "order refunded"
	ReasonManual         = "manual adjustment"
)

// MovementEntry is one row of the append-only stock movement ledger. Entries
// are never updated or deleted. PreviousStock and NewStock snapshot the
// physical counter immediately before and after the change; for soft
// reservations the two are equal because physical stock is untouched.
type MovementEntry struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	ProductID      string    `json:"product_id"`
	VariantID      string    `json:"variant_id"`
	Type           string    `json:"type"`
	Quantity       int       `json:"quantity"`
	PreviousStock  int       `json:"previous_stock"`
	NewStock       int       `json:"new_stock"`
	Reason         string    `json:"reason"`
	Reference      string    `json:"reference"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// Soft reports whether the entry records a reservation-level event with no
// physical stock change.
func (e *MovementEntry) Soft() bool {
	return e.PreviousStock == e.NewStock
}

// VerifyChain replays a variant's ledger entries in order and checks that the
// previous/new stock snapshots form an unbroken chain: each entry's
// previous_stock must equal the running stock value, physical entries must
// move the counter by exactly their quantity, and soft entries must leave it
// untouched. Entries must be sorted by creation time ascending.
func VerifyChain(entries []MovementEntry) error {
	if len(entries) == 0 {
		return nil
	}

	running := entries[0].PreviousStock
	for i, e := range entries {
		if e.PreviousStock != running {
			return fmt.Errorf("entry %d (%s): previous_stock %d does not match running stock %d",
				i, e.ID, e.PreviousStock, running)
		}
		if e.Soft() {
			continue
		}
		if e.NewStock != e.PreviousStock+e.Quantity {
			return fmt.Errorf("entry %d (%s): new_stock %d != previous_stock %d + quantity %d",
				i, e.ID, e.NewStock, e.PreviousStock, e.Quantity)
		}
		if e.NewStock < 0 {
			return fmt.Errorf("entry %d (%s): new_stock %d is negative", i, e.ID, e.NewStock)
		}
		running = e.NewStock
	}

	return nil
}

// ActiveReservationsFromLedger derives the currently held (soft-reserved)
// quantity for a variant by replaying its ledger entries. A soft out entry
// opens a hold, a soft release adjustment closes it, and a physical out entry
// consumes it at ship time. The result must agree with summing the line
// quantities of the variant's orders in stock-holding statuses.
func ActiveReservationsFromLedger(entries []MovementEntry) int {
	reserved := 0
	for _, e := range entries {
		switch {
		case e.Type == MovementOut && e.Soft():
			reserved += -e.Quantity
		case e.Type == MovementOut && !e.Soft():
			reserved -= -e.Quantity
		case e.Type == MovementAdjustment && e.Soft():
			reserved -= e.Quantity
		}
	}
	if reserved < 0 {
		reserved = 0
	}
	return reserved
}
