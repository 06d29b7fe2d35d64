package scope

import (
	"errors"
	"fmt"
)

// Kind identifies a level in the budget scope hierarchy.
type Kind string

const (
	// KindRequestOwner scopes budgets to the owner of an individual request
	// (an API key or user). This is the narrowest level.
	KindRequestOwner Kind = "request_owner"

	// KindProject scopes budgets to a project.
	KindProject Kind = "project"

	// KindOrganization scopes budgets to the whole organization.
	// This is the widest level.
	KindOrganization Kind = "organization"
)

// kindOrder maps each kind to its position in the hierarchy,
// narrowest first. Chains must be ordered by ascending position.
var kindOrder = map[Kind]int{
	KindRequestOwner: 0,
	KindProject:      1,
	KindOrganization: 2,
}

// Valid reports whether k is a known scope kind.
func (k Kind) Valid() bool {
	_, ok := kindOrder[k]
	return ok
}

// Scope identifies a single node in the budget hierarchy.
type Scope struct {
	Kind Kind   `yaml:"kind" json:"kind"`
	ID   string `yaml:"id" json:"id"`
}

// Key returns the storage key for the scope ("project:team-a").
// Keys are stable and used across the ledger, alert state, and analytics.
func (s Scope) Key() string {
	return string(s.Kind) + ":" + s.ID
}

// String implements fmt.Stringer.
func (s Scope) String() string {
	return s.Key()
}

// Chain is an ordered list of scopes, narrowest first
// (request-owner, then project, then organization).
//
// Enforcement and cost recording walk the chain in order, so the
// narrowest violating scope always wins. A chain does not need to
// contain every level, but the levels present must be in order and
// must not repeat.
type Chain []Scope

// Errors returned by Chain.Validate.
var (
	ErrEmptyChain   = errors.New("scope chain is empty")
	ErrUnknownKind  = errors.New("unknown scope kind")
	ErrEmptyScopeID = errors.New("scope id is empty")
	ErrChainOrder   = errors.New("scope chain out of order")
)

// Validate checks that the chain is non-empty, each scope is well formed,
// and the levels appear narrowest-first without duplicates.
func (c Chain) Validate() error {
	if len(c) == 0 {
		return ErrEmptyChain
	}

	prev := -1
	for _, s := range c {
		order, ok := kindOrder[s.Kind]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
		}
		if s.ID == "" {
			return fmt.Errorf("%w: kind %q", ErrEmptyScopeID, s.Kind)
		}
		if order <= prev {
			return fmt.Errorf("%w: %q must come before wider scopes", ErrChainOrder, s.Kind)
		}
		prev = order
	}

	return nil
}

// Top returns the widest scope in the chain (typically the organization).
func (c Chain) Top() (Scope, bool) {
	if len(c) == 0 {
		return Scope{}, false
	}
	return c[len(c)-1], true
}

// Find returns the scope of the given kind, if present.
func (c Chain) Find(kind Kind) (Scope, bool) {
	for _, s := range c {
		if s.Kind == kind {
			return s, true
		}
	}
	return Scope{}, false
}
