package service

// Plan is a purchasable membership tier. The catalog is code-defined; prices
// are minor units.
type Plan struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Months   int    `json:"months"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

var planCatalog = map[string]Plan{
	"monthly": {
		ID:       "monthly",
		Name:     "Monthly membership",
		Months:   1,
		Amount:   1000,
		Currency: "GBP",
	},
	"quarterly": {
		ID:       "quarterly",
		Name:     "Quarterly membership",
		Months:   3,
		Amount:   2700,
		Currency: "GBP",
	},
	"annual": {
		ID:       "annual",
		Name:     "Annual membership",
		Months:   12,
		Amount:   9600,
		Currency: "GBP",
	},
}

// LookupPlan resolves a plan id, case-sensitively.
func LookupPlan(id string) (Plan, bool) {
	plan, ok := planCatalog[id]
	return plan, ok
}

// AllPlans returns the catalog in a stable order.
func AllPlans() []Plan {
	return []Plan{planCatalog["monthly"], planCatalog["quarterly"], planCatalog["annual"]}
}
