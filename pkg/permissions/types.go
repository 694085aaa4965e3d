package permissions

// Resource represents a resource type a permission applies to
type Resource string

const (
	ResourceDashboard Resource = "dashboard"
	ResourcePortfolio Resource = "portfolio"
	ResourceOrders    Resource = "orders"
	ResourceReports   Resource = "reports"
	ResourceAPI       Resource = "api"
	ResourceUsers     Resource = "users"
	ResourceSettings  Resource = "settings"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionTrade  Action = "trade"
	ActionExport Action = "export"
	ActionManage Action = "manage"
)

// Category groups related permissions for display purposes
type Category string

const (
	CategoryMarketData     Category = "market_data"
	CategoryTrading        Category = "trading"
	CategoryReporting      Category = "reporting"
	CategoryIntegrations   Category = "integrations"
	CategoryAdministration Category = "administration"
)

// Permission is an immutable catalog entry. Referenced everywhere by ID;
// the definition is never duplicated outside the registry.
type Permission struct {
	ID       string   `json:"id"`
	Resource Resource `json:"resource"`
	Actions  []Action `json:"actions"`
	Category Category `json:"category"`
}

// Allows reports whether the permission grants the given action.
func (p Permission) Allows(action Action) bool {
	for _, a := range p.Actions {
		if a == action {
			return true
		}
	}
	return false
}
