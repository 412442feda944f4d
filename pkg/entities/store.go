// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package entities

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrHostTaken is returned when a tenant insert would claim a host that
// already belongs to another tenant. The whole insert is rejected.
var ErrHostTaken = errors.New("host already belongs to another tenant")

// ChangeKind describes what happened to an entity.
type ChangeKind int

// Change kinds published to hooks.
const (
	EntityAdded ChangeKind = iota
	EntityRemoved
)

// Change is a typed change notification. Exactly one of Tenant or
// Client is non-nil.
type Change struct {
	Kind   ChangeKind
	Tenant *Tenant
	Client *Client
}

// ChangeHook receives change notifications after the mutation is
// visible to readers. Hooks must not block for long; slow consumers
// should hand off to their own goroutine.
type ChangeHook func(change Change)

// Store is the process-wide registry of tenants and clients. It is a
// single-writer / many-reader structure: readers see a point-in-time
// snapshot, writers serialize on the mutex.
type Store struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
	clients []*Client
	hooks   []ChangeHook
}

// NewStore creates an empty registry.
func NewStore() *Store {
	return &Store{
		tenants: make(map[string]*Tenant),
	}
}

// Subscribe registers a change hook. Hooks fire in registration order.
func (s *Store) Subscribe(hook ChangeHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func (s *Store) publish(change Change) {
	s.mu.RLock()
	hooks := make([]ChangeHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.RUnlock()
	for _, hook := range hooks {
		hook(change)
	}
}

// UpsertTenant inserts a tenant, or replaces the tenant with the same
// name. The insert is rejected as a whole when one of the tenant's
// hosts already belongs to a different tenant.
func (s *Store) UpsertTenant(tenant *Tenant) error {
	if err := tenant.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	for name, existing := range s.tenants {
		if name == tenant.Name {
			continue
		}
		for _, host := range tenant.Config.Hosts {
			for _, otherHost := range existing.Config.Hosts {
				if strings.EqualFold(host, otherHost) {
					s.mu.Unlock()
					return fmt.Errorf("%w: %s is configured on tenant %s", ErrHostTaken, host, name)
				}
			}
		}
	}
	previous := s.tenants[tenant.Name]
	s.tenants[tenant.Name] = tenant
	s.mu.Unlock()

	if previous != nil {
		s.publish(Change{Kind: EntityRemoved, Tenant: previous})
	}
	s.publish(Change{Kind: EntityAdded, Tenant: tenant})
	return nil
}

// RemoveTenant removes a tenant by name. Its clients are orphaned, not
// cascade-removed. Returns false when the tenant is unknown.
func (s *Store) RemoveTenant(name string) bool {
	s.mu.Lock()
	tenant, ok := s.tenants[name]
	if ok {
		delete(s.tenants, name)
	}
	s.mu.Unlock()

	if ok {
		s.publish(Change{Kind: EntityRemoved, Tenant: tenant})
	}
	return ok
}

// Tenant returns the tenant with the given name, or nil.
func (s *Store) Tenant(name string) *Tenant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenants[name]
}

// TenantByHost resolves the tenant responsible for a request host.
// An exact host match wins over a wildcard match.
func (s *Store) TenantByHost(host string) *Tenant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var wildcard *Tenant
	for _, tenant := range s.tenants {
		if tenant.HasExactHost(strings.ToLower(host)) {
			return tenant
		}
		if wildcard == nil && tenant.MatchesHost(host) {
			wildcard = tenant
		}
	}
	return wildcard
}

// TenantByRef returns the tenant loaded from the given source, or nil.
func (s *Store) TenantByRef(ref Ref) *Tenant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tenant := range s.tenants {
		if tenant.Ref != nil && tenant.Ref.Equal(ref) {
			return tenant
		}
	}
	return nil
}

// Tenants returns a snapshot of all tenants.
func (s *Store) Tenants() []*Tenant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Tenant, 0, len(s.tenants))
	for _, tenant := range s.tenants {
		out = append(out, tenant)
	}
	return out
}

// TenantCount returns the number of registered tenants.
func (s *Store) TenantCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tenants)
}

// UpsertClient inserts a client, or replaces the client with the same
// id. The owning tenant must exist at the moment of activation.
func (s *Store) UpsertClient(client *Client) error {
	if err := client.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.tenants[client.Config.TenantName]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("client %s references unknown tenant %q", client.ID, client.Config.TenantName)
	}
	var previous *Client
	for i, existing := range s.clients {
		if existing.ID == client.ID {
			previous = existing
			s.clients[i] = client
			break
		}
	}
	if previous == nil {
		s.clients = append(s.clients, client)
	}
	s.mu.Unlock()

	if previous != nil {
		s.publish(Change{Kind: EntityRemoved, Client: previous})
	}
	s.publish(Change{Kind: EntityAdded, Client: client})
	return nil
}

// RemoveClient removes a client by id. Returns false when unknown.
func (s *Store) RemoveClient(id uuid.UUID) bool {
	s.mu.Lock()
	var removed *Client
	for i, existing := range s.clients {
		if existing.ID == id {
			removed = existing
			s.clients = append(s.clients[:i], s.clients[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if removed != nil {
		s.publish(Change{Kind: EntityRemoved, Client: removed})
	}
	return removed != nil
}

// Client resolves a client by its client_id string, case-insensitively.
func (s *Store) Client(id string) *Client {
	parsed, err := uuid.Parse(strings.ToLower(strings.TrimSpace(id)))
	if err != nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, client := range s.clients {
		if client.ID == parsed {
			return client
		}
	}
	return nil
}

// ClientByRef returns the client loaded from the given source, or nil.
func (s *Store) ClientByRef(ref Ref) *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, client := range s.clients {
		if client.Ref != nil && client.Ref.Equal(ref) {
			return client
		}
	}
	return nil
}

// ClientsForTenant returns a snapshot of the clients registered to a
// tenant name.
func (s *Store) ClientsForTenant(tenantName string) []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Client
	for _, client := range s.clients {
		if client.Config.TenantName == tenantName {
			out = append(out, client)
		}
	}
	return out
}

// ClientCount returns the number of registered clients.
func (s *Store) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// RemoveByRef removes whichever entity was loaded from the given
// source. Returns true when something was removed.
func (s *Store) RemoveByRef(ref Ref) bool {
	if tenant := s.TenantByRef(ref); tenant != nil {
		return s.RemoveTenant(tenant.Name)
	}
	if client := s.ClientByRef(ref); client != nil {
		return s.RemoveClient(client.ID)
	}
	return false
}
