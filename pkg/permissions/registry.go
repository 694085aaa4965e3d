package permissions

import (
	"fmt"
	"sort"
)

// Registry is a read-only catalog of permissions keyed by ID.
type Registry struct {
	byID map[string]Permission
}

// NewRegistry builds a registry from the given entries.
// Duplicate or empty IDs are a validation error.
func NewRegistry(entries []Permission) (*Registry, error) {
	byID := make(map[string]Permission, len(entries))
	for _, p := range entries {
		if p.ID == "" {
			return nil, fmt.Errorf("permission with empty id")
		}
		if _, exists := byID[p.ID]; exists {
			return nil, fmt.Errorf("duplicate permission id: %s", p.ID)
		}
		if len(p.Actions) == 0 {
			return nil, fmt.Errorf("permission %s has no actions", p.ID)
		}
		byID[p.ID] = p
	}
	return &Registry{byID: byID}, nil
}

// Get returns the permission for an ID. The second return value reports
// whether the ID is known.
func (r *Registry) Get(id string) (Permission, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Has reports whether the ID is in the catalog.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// List returns all permissions sorted by ID.
func (r *Registry) List() []Permission {
	out := make([]Permission, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListByCategory returns all permissions in a category sorted by ID.
func (r *Registry) ListByCategory(category Category) []Permission {
	var out []Permission
	for _, p := range r.byID {
		if p.Category == category {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DefaultCatalog returns the built-in permission definitions.
func DefaultCatalog() []Permission {
	return []Permission{
		{
			ID:       "view_dashboard",
			Resource: ResourceDashboard,
			Actions:  []Action{ActionView},
			Category: CategoryMarketData,
		},
		{
			ID:       "view_portfolio",
			Resource: ResourcePortfolio,
			Actions:  []Action{ActionView},
			Category: CategoryMarketData,
		},
		{
			ID:       "trade_execution",
			Resource: ResourceOrders,
			Actions:  []Action{ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionTrade},
			Category: CategoryTrading,
		},
		{
			ID:       "export_reports",
			Resource: ResourceReports,
			Actions:  []Action{ActionView, ActionExport},
			Category: CategoryReporting,
		},
		{
			ID:       "api_access",
			Resource: ResourceAPI,
			Actions:  []Action{ActionView, ActionCreate},
			Category: CategoryIntegrations,
		},
		{
			ID:       "manage_users",
			Resource: ResourceUsers,
			Actions:  []Action{ActionView, ActionCreate, ActionUpdate, ActionDelete, ActionManage},
			Category: CategoryAdministration,
		},
		{
			ID:       "manage_settings",
			Resource: ResourceSettings,
			Actions:  []Action{ActionView, ActionUpdate, ActionManage},
			Category: CategoryAdministration,
		},
	}
}

// DefaultRegistry returns a registry seeded with the built-in catalog.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultCatalog())
	if err != nil {
		// The built-in catalog is static; a failure here is a programming error.
		panic(err)
	}
	return r
}
