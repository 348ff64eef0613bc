package nats

import (
	"strings"
	"time"

	"github.com/brojonat/arbledger/service/ledger"
	"github.com/ethereum/go-ethereum/common"
)

// SplitEvent is one ledger split published to NATS.
// It is published to the subject "ledger.{address}" in JetStream.
type SplitEvent struct {
	Address string `json:"address"`
	TxHash  string `json:"tx_hash"`

	Date        string   `json:"date"` // YYYY-MM-DD, UTC
	Description string   `json:"description"`
	Account     string   `json:"account"`
	Commodity   string   `json:"commodity"`
	Amount      float64  `json:"amount"`
	Value       *float64 `json:"value,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// Subject returns the JetStream subject the event is published on.
func (e *SplitEvent) Subject() string {
	return SubjectPrefix + strings.ToLower(e.Address)
}

// FromSplit converts a ledger split for the tracked address into an event.
func FromSplit(address common.Address, s ledger.Split) *SplitEvent {
	return &SplitEvent{
		Address:     strings.ToLower(address.Hex()),
		TxHash:      s.TxHash.Hex(),
		Date:        s.Date.UTC().Format(time.DateOnly),
		Description: s.Description,
		Account:     s.Account,
		Commodity:   s.Commodity,
		Amount:      s.Amount,
		Value:       s.Value,
		PublishedAt: time.Now().UTC(),
	}
}

// FromSplits converts a whole ledger.
func FromSplits(address common.Address, splits []ledger.Split) []*SplitEvent {
	events := make([]*SplitEvent, 0, len(splits))
	for _, s := range splits {
		events = append(events, FromSplit(address, s))
	}
	return events
}
