package resources

// Catalog is the full set of resource definitions in the mock, keyed by
// name (the plural route segment). It is the single source of truth for
// id prefixes that the hydrator's prefix table (pkg/hydrate) is built
// from.
var Catalog = []Definition{
	{Name: "customers", Object: "customer", Prefix: "cus"},
	{Name: "tokens", Object: "token", Prefix: "tok"},
	{Name: "payment_methods", Object: "payment_method", Prefix: "pm"},
	{Name: "charges", Object: "charge", Prefix: "ch"},
	{Name: "payment_intents", Object: "payment_intent", Prefix: "pi"},
	{Name: "refunds", Object: "refund", Prefix: "re"},
	{Name: "products", Object: "product", Prefix: "prod"},
	{Name: "prices", Object: "price", Prefix: "price"},
	{Name: "plans", Object: "plan", Prefix: "plan"},
	{
		Name:         "subscriptions",
		Object:       "subscription",
		Prefix:       "sub",
		DeleteAction: DeleteCancels,
		Defaults: func() map[string]interface{} {
			return map[string]interface{}{"status": "active", "cancel_at_period_end": false}
		},
	},
	{Name: "subscription_items", Object: "subscription_item", Prefix: "si", Immutable: []string{"subscription"}},
	{Name: "invoices", Object: "invoice", Prefix: "in"},
	{Name: "invoiceitems", Object: "invoiceitem", Prefix: "ii"},
	{Name: "balance_transactions", Object: "balance_transaction", Prefix: "txn"},
	{Name: "events", Object: "event", Prefix: "evt"},
	{
		Name:   "checkout_sessions",
		Object: "checkout.session",
		Prefix: "cs",
		Defaults: func() map[string]interface{} {
			return map[string]interface{}{"status": "open"}
		},
	},
}

// PrefixTable maps an id prefix to its resource name, e.g. "cus" ->
// "customers". Built once from Catalog.
func PrefixTable() map[string]string {
	table := make(map[string]string, len(Catalog))
	for _, def := range Catalog {
		table[def.Prefix] = def.Name
	}
	return table
}

// ByName indexes Catalog by resource name for lookup when wiring
// dispatchers.
func ByName() map[string]Definition {
	table := make(map[string]Definition, len(Catalog))
	for _, def := range Catalog {
		table[def.Name] = def
	}
	return table
}
