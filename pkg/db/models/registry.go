package models

// All lists the persisted models in dependency order for schema bootstrapping.
func All() []any {
	return []any{
		&User{},
		&Product{},
		&ProductVariant{},
		&Order{},
		&OrderItem{},
	}
}
