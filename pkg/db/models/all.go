package models

// All lists every persisted model. sqlite deployments create their schema
// from it; postgres uses the goose migrations.
func All() []any {
	return []any{
		&Site{},
		&Building{},
		&FeedStockItem{},
		&FeedStockMovement{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
