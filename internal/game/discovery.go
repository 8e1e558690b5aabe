package game

import (
	"github.com/ashureev/escape-labs/internal/reply"
	"github.com/ashureev/escape-labs/internal/scenario"
)

const statusConfirmed = "confirmed"

// DiscoveryUpdate reports what one reply contributed to the ledger.
type DiscoveryUpdate struct {
	// Confirmed lists names taken from an explicit confirmation.
	Confirmed []string `json:"confirmed,omitempty"`
	// Matched lists names found by scanning the reply message.
	Matched []string `json:"matched,omitempty"`
	// Added lists names that were new to the ledger.
	Added []string `json:"added,omitempty"`
}

// ApplyDiscovery merges the fields confirmed by a persona reply into the
// ledger.
//
// When status is "confirmed", every non-empty name in confirmed_fields is
// recorded, known to the catalog or not. If that recorded nothing, the
// reply's message is scanned for catalog names as whole words and those are
// recorded instead.
func ApplyDiscovery(ledger *DiscoveryLedger, catalog *scenario.Catalog, raw string) (DiscoveryUpdate, error) {
	var update DiscoveryUpdate
	r, ok := reply.Extract(raw)
	if !ok {
		return update, ErrUnstructuredReply
	}

	record := func(name string) {
		if ledger.Add(name, catalog.Description(name)) {
			update.Added = append(update.Added, name)
		}
	}

	if r.Status() == statusConfirmed {
		if names, ok := r.ConfirmedFields(); ok {
			for _, name := range names {
				record(name)
				update.Confirmed = append(update.Confirmed, name)
			}
		}
	}

	if len(update.Confirmed) == 0 {
		if msg, ok := r.Message(); ok && msg != "" {
			for _, name := range reply.MatchFields(msg, catalog.Names()) {
				record(name)
				update.Matched = append(update.Matched, name)
			}
		}
	}
	return update, nil
}
