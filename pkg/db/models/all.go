package models

// All lists every persisted model, in dependency order, for schema bootstrap
// in tests and sqlite-backed local runs.
func All() []any {
	return []any{
		&Order{},
		&OrderItem{},
		&ShopLedger{},
		&ShopLedgerEntry{},
		&PayoutBatch{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
