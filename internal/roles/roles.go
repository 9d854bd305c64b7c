// Package roles is the access-control registry injected into the vault,
// router, and request ledgers at construction. Role checks are explicit and
// queried per call; there is no ambient authority.
package roles

import (
	"sync"

	"github.com/terminal-bench/fundvault/internal/fund"
)

// Role names a permitted-operation set.
type Role string

const (
	// Admin may call every privileged operation.
	Admin Role = "admin"
	// InflowManager may tune subscription-side admission parameters.
	InflowManager Role = "inflow-manager"
	// OutflowManager may tune redemption-side admission parameters.
	OutflowManager Role = "outflow-manager"
)

// Registry maps addresses to granted roles.
type Registry struct {
	mu     sync.RWMutex
	grants map[fund.Address]map[Role]bool
}

// NewRegistry creates a registry with admin granted to the given address.
func NewRegistry(admin fund.Address) *Registry {
	r := &Registry{grants: make(map[fund.Address]map[Role]bool)}
	r.add(admin, Admin)
	return r
}

func (r *Registry) add(addr fund.Address, role Role) {
	if r.grants[addr] == nil {
		r.grants[addr] = make(map[Role]bool)
	}
	r.grants[addr][role] = true
}

// Grant gives addr the role. Only an admin may grant.
func (r *Registry) Grant(caller, addr fund.Address, role Role) error {
	if addr.IsZero() {
		return fund.ErrZeroAddress
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.grants[caller][Admin] {
		return fund.ErrUnauthorized
	}
	r.add(addr, role)
	return nil
}

// Revoke removes the role from addr. Only an admin may revoke.
func (r *Registry) Revoke(caller, addr fund.Address, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.grants[caller][Admin] {
		return fund.ErrUnauthorized
	}
	delete(r.grants[addr], role)
	return nil
}

// Has reports whether addr holds the role.
func (r *Registry) Has(addr fund.Address, role Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.grants[addr][role]
}

// RequireAdmin fails with Unauthorized unless caller is an admin.
func (r *Registry) RequireAdmin(caller fund.Address) error {
	if !r.Has(caller, Admin) {
		return fund.ErrUnauthorized
	}
	return nil
}

// RequireAny fails with Unauthorized unless caller holds at least one of the
// given roles.
func (r *Registry) RequireAny(caller fund.Address, want ...Role) error {
	for _, role := range want {
		if r.Has(caller, role) {
			return nil
		}
	}
	return fund.ErrUnauthorized
}
