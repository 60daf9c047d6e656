package models

import (
	"errors"
	"testing"

	"github.com/nugget/kir/internal/config"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := FromConfig(config.Default().Models)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	return c
}

func TestResolve(t *testing.T) {
	c := testCatalog(t)

	got, err := c.Resolve("")
	if err != nil || got != "openai/gpt-oss-120b" {
		t.Errorf("Resolve(\"\") = %q, %v; want default", got, err)
	}

	got, err = c.Resolve("openai/gpt-oss-20b")
	if err != nil || got != "openai/gpt-oss-20b" {
		t.Errorf("Resolve(20b) = %q, %v", got, err)
	}

	if _, err := c.Resolve("gpt-4"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Resolve(gpt-4) error = %v, want ErrUnknownModel", err)
	}
}

func TestNext(t *testing.T) {
	c := testCatalog(t)
	if got := c.Next("openai/gpt-oss-120b"); got != "openai/gpt-oss-20b" {
		t.Errorf("Next(120b) = %q", got)
	}
	if got := c.Next("openai/gpt-oss-20b"); got != "openai/gpt-oss-120b" {
		t.Errorf("Next(20b) should wrap, got %q", got)
	}
	if got := c.Next("missing"); got != "openai/gpt-oss-120b" {
		t.Errorf("Next(missing) = %q", got)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(nil, "x"); err == nil {
		t.Error("expected error for empty catalog")
	}
	if _, err := New([]Model{{ID: "a"}, {ID: "a"}}, "a"); err == nil {
		t.Error("expected error for duplicate")
	}
	if _, err := New([]Model{{ID: "a"}}, "b"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel for bad default, got %v", err)
	}
}

func TestList_IsCopy(t *testing.T) {
	c := testCatalog(t)
	list := c.List()
	list[0].ID = "mutated"
	if c.Default() != "openai/gpt-oss-120b" || c.List()[0].ID == "mutated" {
		t.Error("List must return a copy")
	}
}

func TestListingRoundTrip(t *testing.T) {
	c := testCatalog(t)
	back, err := FromListing(c.Listing())
	if err != nil {
		t.Fatalf("FromListing: %v", err)
	}
	if back.Default() != c.Default() {
		t.Errorf("Default = %q, want %q", back.Default(), c.Default())
	}
	if len(back.List()) != len(c.List()) {
		t.Errorf("len = %d, want %d", len(back.List()), len(c.List()))
	}

	if _, err := FromListing(Listing{}); err == nil {
		t.Error("empty listing should fail")
	}
}
