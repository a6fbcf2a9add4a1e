package memory

import (
	"context"
	"sync"

	"github.com/routeforge/routeforge/ports"
)

// PermissionStore is a map-backed permission checker: user id to the
// set of permissions granted.
type PermissionStore struct {
	mu     sync.RWMutex
	grants map[string]map[string]bool
}

// NewPermissionStore creates an empty store.
func NewPermissionStore() *PermissionStore {
	return &PermissionStore{grants: make(map[string]map[string]bool)}
}

// Grant gives a user a permission.
func (s *PermissionStore) Grant(userID, permission string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grants[userID] == nil {
		s.grants[userID] = make(map[string]bool)
	}
	s.grants[userID][permission] = true
}

// Revoke removes a permission from a user.
func (s *PermissionStore) Revoke(userID, permission string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants[userID], permission)
}

// HasPermission implements ports.PermissionChecker.
func (s *PermissionStore) HasPermission(_ context.Context, user *ports.User, permission string, _ map[string]any) (bool, error) {
	if user == nil {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grants[user.ID][permission], nil
}

// RoleStore is a map-backed role checker: user id to role set. It
// supplements the roles carried on the user object itself.
type RoleStore struct {
	mu    sync.RWMutex
	roles map[string]map[string]bool
}

// NewRoleStore creates an empty store.
func NewRoleStore() *RoleStore {
	return &RoleStore{roles: make(map[string]map[string]bool)}
}

// Assign gives a user a role.
func (s *RoleStore) Assign(userID, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles[userID] == nil {
		s.roles[userID] = make(map[string]bool)
	}
	s.roles[userID][role] = true
}

// HasRole implements ports.RoleChecker. A role held either in the
// store or on the user object counts.
func (s *RoleStore) HasRole(_ context.Context, user *ports.User, role string) (bool, error) {
	if user == nil {
		return false, nil
	}
	if user.HasRole(role) {
		return true, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles[user.ID][role], nil
}

// OwnershipStore is a map-backed ownership checker: resource type and
// id to owner user id.
type OwnershipStore struct {
	mu     sync.RWMutex
	owners map[string]string
}

// NewOwnershipStore creates an empty store.
func NewOwnershipStore() *OwnershipStore {
	return &OwnershipStore{owners: make(map[string]string)}
}

func ownerKey(resourceType, resourceID string) string {
	return resourceType + "/" + resourceID
}

// SetOwner records the owner of a resource instance.
func (s *OwnershipStore) SetOwner(resourceType, resourceID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[ownerKey(resourceType, resourceID)] = userID
}

// Owns implements ports.OwnershipChecker.
func (s *OwnershipStore) Owns(_ context.Context, user *ports.User, resourceType, resourceID, _ string) (bool, error) {
	if user == nil {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.owners[ownerKey(resourceType, resourceID)]
	return ok && owner == user.ID, nil
}

var (
	_ ports.PermissionChecker = (*PermissionStore)(nil)
	_ ports.RoleChecker       = (*RoleStore)(nil)
	_ ports.OwnershipChecker  = (*OwnershipStore)(nil)
)
