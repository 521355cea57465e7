// SPDX-FileCopyrightText: Copyright 2026 Grantly Authors
// SPDX-License-Identifier: Apache-2.0

package rbac

import (
	"context"
	"sort"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store with in-memory maps. It is thread-safe and
// suitable for development and testing; production deployments use PGStore.
type MemoryStore struct {
	mu sync.RWMutex

	users       map[string]*User
	usersByMail map[string]string
	orgs        map[string]*Organization
	memberships map[string]map[string]Role   // orgID -> userID -> role
	groups      map[string]*Group            // groupID -> group
	groupUsers  map[string]map[string]bool   // groupID -> userID -> member
	groupPerms  map[string]map[string]bool   // groupID -> permission key -> granted
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*User),
		usersByMail: make(map[string]string),
		orgs:        make(map[string]*Organization),
		memberships: make(map[string]map[string]Role),
		groups:      make(map[string]*Group),
		groupUsers:  make(map[string]map[string]bool),
		groupPerms:  make(map[string]map[string]bool),
	}
}

// AddUser registers a user. Test/dev setup helper.
func (s *MemoryStore) AddUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := u
	s.users[u.ID] = &copied
	s.usersByMail[u.Email] = u.ID
}

// AddOrganization registers an organization.
func (s *MemoryStore) AddOrganization(o Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := o
	s.orgs[o.ID] = &copied
}

// AddMembership links a user to an organization.
func (s *MemoryStore) AddMembership(m Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memberships[m.OrgID] == nil {
		s.memberships[m.OrgID] = make(map[string]Role)
	}
	s.memberships[m.OrgID][m.UserID] = m.Role
}

// RemoveMembership removes a user from an organization.
func (s *MemoryStore) RemoveMembership(userID, orgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memberships[orgID], userID)
}

// AddGroup registers a group.
func (s *MemoryStore) AddGroup(g Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := g
	s.groups[g.ID] = &copied
}

// AddGroupMember puts a user in a group.
func (s *MemoryStore) AddGroupMember(groupID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groupUsers[groupID] == nil {
		s.groupUsers[groupID] = make(map[string]bool)
	}
	s.groupUsers[groupID][userID] = true
}

// RemoveGroupMember removes a user from a group.
func (s *MemoryStore) RemoveGroupMember(groupID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groupUsers[groupID], userID)
}

// GrantPermission grants a permission string to a group.
func (s *MemoryStore) GrantPermission(groupID, permission string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groupPerms[groupID] == nil {
		s.groupPerms[groupID] = make(map[string]bool)
	}
	s.groupPerms[groupID][permission] = true
}

// RevokePermission revokes a permission string from a group.
func (s *MemoryStore) RevokePermission(groupID, permission string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groupPerms[groupID], permission)
}

func (s *MemoryStore) IsMember(_ context.Context, userID, orgID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.memberships[orgID][userID]
	return ok, nil
}

func (s *MemoryStore) GroupsForUser(_ context.Context, userID, orgID string) ([]Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var groups []Group
	for id, g := range s.groups {
		if g.OrgID != orgID {
			continue
		}
		if s.groupUsers[id][userID] {
			groups = append(groups, *g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups, nil
}

func (s *MemoryStore) PermissionsForGroup(_ context.Context, groupID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perms := make([]string, 0, len(s.groupPerms[groupID]))
	for key := range s.groupPerms[groupID] {
		perms = append(perms, key)
	}
	sort.Strings(perms)
	return perms, nil
}

func (s *MemoryStore) GroupByID(_ context.Context, groupID string) (*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *g
	return &copied, nil
}

func (s *MemoryStore) GroupMembers(_ context.Context, groupID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.groupUsers[groupID]))
	for id := range s.groupUsers[groupID] {
		users = append(users, id)
	}
	sort.Strings(users)
	return users, nil
}

func (s *MemoryStore) UserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByMail[email]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *s.users[id]
	return &copied, nil
}

func (s *MemoryStore) UserByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *MemoryStore) OrganizationsForUser(_ context.Context, userID string) ([]Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var orgs []Organization
	for orgID, members := range s.memberships {
		if _, ok := members[userID]; !ok {
			continue
		}
		if o, exists := s.orgs[orgID]; exists {
			orgs = append(orgs, *o)
		}
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].Name < orgs[j].Name })
	return orgs, nil
}
