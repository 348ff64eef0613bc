package tags

import (
	"github.com/brojonat/arbledger/service/explorer"
)

// Annotate fills the annotation fields of each transaction in place.
// The recipient's entry wins over the sender's for Tag, Category and
// Description; FromTag and ToTag are set from each side's own entry.
// Addresses without an entry leave the fields nil.
func Annotate(txs []*explorer.Transaction, m Mapping) {
	if len(m) == 0 {
		return
	}
	for _, tx := range txs {
		var chosen *Annotation

		if tx.To != nil {
			if a, ok := m[*tx.To]; ok {
				chosen = &a
				tx.ToTag = optional(a.Tag)
			}
		}
		if a, ok := m[tx.From]; ok {
			tx.FromTag = optional(a.Tag)
			if chosen == nil {
				chosen = &a
			}
		}

		if chosen != nil {
			tx.Tag = optional(chosen.Tag)
			tx.Category = optional(chosen.Category)
			tx.Description = optional(chosen.Description)
		}
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
