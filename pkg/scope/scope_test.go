package scope

import (
	"errors"
	"testing"
)

// ============================================================================
// Scope Key Tests
// ============================================================================

func TestScope_Key(t *testing.T) {
	s := Scope{Kind: KindProject, ID: "checkout"}
	if got := s.Key(); got != "project:checkout" {
		t.Errorf("Expected key 'project:checkout', got %q", got)
	}
}

func TestKind_Valid(t *testing.T) {
	for _, k := range []Kind{KindRequestOwner, KindProject, KindOrganization} {
		if !k.Valid() {
			t.Errorf("Expected %q to be valid", k)
		}
	}
	if Kind("team").Valid() {
		t.Error("Expected 'team' to be invalid")
	}
}

// ============================================================================
// Chain Validation Tests
// ============================================================================

func TestChain_Validate_Full(t *testing.T) {
	chain := Chain{
		{Kind: KindRequestOwner, ID: "key-123"},
		{Kind: KindProject, ID: "checkout"},
		{Kind: KindOrganization, ID: "acme"},
	}
	if err := chain.Validate(); err != nil {
		t.Errorf("Expected valid chain, got %v", err)
	}
}

func TestChain_Validate_PartialLevels(t *testing.T) {
	// A chain does not need every level, only order.
	chain := Chain{
		{Kind: KindProject, ID: "checkout"},
		{Kind: KindOrganization, ID: "acme"},
	}
	if err := chain.Validate(); err != nil {
		t.Errorf("Expected valid partial chain, got %v", err)
	}
}

func TestChain_Validate_Empty(t *testing.T) {
	if err := (Chain{}).Validate(); !errors.Is(err, ErrEmptyChain) {
		t.Errorf("Expected ErrEmptyChain, got %v", err)
	}
}

func TestChain_Validate_UnknownKind(t *testing.T) {
	chain := Chain{{Kind: "team", ID: "x"}}
	if err := chain.Validate(); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Expected ErrUnknownKind, got %v", err)
	}
}

func TestChain_Validate_EmptyID(t *testing.T) {
	chain := Chain{{Kind: KindProject, ID: ""}}
	if err := chain.Validate(); !errors.Is(err, ErrEmptyScopeID) {
		t.Errorf("Expected ErrEmptyScopeID, got %v", err)
	}
}

func TestChain_Validate_OutOfOrder(t *testing.T) {
	chain := Chain{
		{Kind: KindOrganization, ID: "acme"},
		{Kind: KindProject, ID: "checkout"},
	}
	if err := chain.Validate(); !errors.Is(err, ErrChainOrder) {
		t.Errorf("Expected ErrChainOrder, got %v", err)
	}
}

func TestChain_Validate_Duplicate(t *testing.T) {
	chain := Chain{
		{Kind: KindProject, ID: "a"},
		{Kind: KindProject, ID: "b"},
	}
	if err := chain.Validate(); !errors.Is(err, ErrChainOrder) {
		t.Errorf("Expected ErrChainOrder for duplicate level, got %v", err)
	}
}

// ============================================================================
// Chain Accessor Tests
// ============================================================================

func TestChain_Top(t *testing.T) {
	chain := Chain{
		{Kind: KindRequestOwner, ID: "key-123"},
		{Kind: KindOrganization, ID: "acme"},
	}

	top, ok := chain.Top()
	if !ok {
		t.Fatal("Expected top scope")
	}
	if top.Kind != KindOrganization || top.ID != "acme" {
		t.Errorf("Expected organization:acme, got %s", top.Key())
	}

	if _, ok := (Chain{}).Top(); ok {
		t.Error("Expected no top for empty chain")
	}
}

func TestChain_Find(t *testing.T) {
	chain := Chain{
		{Kind: KindRequestOwner, ID: "key-123"},
		{Kind: KindProject, ID: "checkout"},
	}

	s, ok := chain.Find(KindProject)
	if !ok || s.ID != "checkout" {
		t.Errorf("Expected project:checkout, got %v (found=%v)", s, ok)
	}

	if _, ok := chain.Find(KindOrganization); ok {
		t.Error("Expected organization to be absent")
	}
}
