package catalog

// SeedHospitalityCatalog loads the default hospitality permission surface into
// an in-memory store: the modules a POS deployment ships with, the CRUD-style
// actions every module exposes, and the sensitive financial actions scoped to
// the modules that can move money or stock.
func SeedHospitalityCatalog(store *InMemoryStore) {
	modules := []Module{
		{Key: "pos", DisplayName: "Point of Sale", Icon: "bi bi-cash-register", Active: true},
		{Key: "restaurant", DisplayName: "Restaurant", Icon: "bi bi-cup-hot", Active: true},
		{Key: "inventory", DisplayName: "Inventory", Icon: "bi bi-box-seam", Active: true},
		{Key: "customers", DisplayName: "Customers", Icon: "bi bi-people", Active: true},
		{Key: "products", DisplayName: "Products", Icon: "bi bi-tags", Active: true},
		{Key: "sales", DisplayName: "Sales", Icon: "bi bi-receipt", Active: true},
		{Key: "reports", DisplayName: "Reports", Icon: "bi bi-graph-up", Active: true},
		{Key: "accounting", DisplayName: "Accounting", Icon: "bi bi-calculator", Active: true},
		{Key: "rooms", DisplayName: "Rooms", Icon: "bi bi-door-closed", Active: true},
		{Key: "delivery", DisplayName: "Delivery", Icon: "bi bi-truck", Active: true},
	}

	actions := []Action{
		{Key: "view", DisplayName: "View"},
		{Key: "create", DisplayName: "Create"},
		{Key: "read", DisplayName: "Read"},
		{Key: "update", DisplayName: "Update"},
		{Key: "delete", DisplayName: "Delete", IsSensitive: true},
		{Key: "manage", DisplayName: "Manage"},
		{Key: "refund", DisplayName: "Refund", IsSensitive: true, RequiresApproval: true},
		{Key: "void", DisplayName: "Void", IsSensitive: true, RequiresApproval: true},
		{Key: "adjust", DisplayName: "Adjust", IsSensitive: true},
	}

	baseActions := []string{"view", "create", "read", "update", "delete", "manage"}
	var pairs []Pair
	for _, module := range modules {
		for _, actionKey := range baseActions {
			pairs = append(pairs, Pair{ModuleKey: module.Key, ActionKey: actionKey})
		}
	}
	// Sensitive financial actions only exist where they mean something.
	pairs = append(pairs,
		Pair{ModuleKey: "sales", ActionKey: "refund"},
		Pair{ModuleKey: "pos", ActionKey: "refund"},
		Pair{ModuleKey: "pos", ActionKey: "void"},
		Pair{ModuleKey: "restaurant", ActionKey: "void"},
		Pair{ModuleKey: "inventory", ActionKey: "adjust"},
		Pair{ModuleKey: "accounting", ActionKey: "adjust"},
	)

	store.Load(modules, actions, pairs)
}
