package httpserver

import (
	"net/url"
	"testing"
)

func TestBuildAccountFilters(t *testing.T) {
	values, _ := url.ParseQuery("q= bakery &type=instagram&category=cat-1&owner=user-1&limit=50")

	filters, err := buildAccountFilters(values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filters.Search == nil || *filters.Search != "bakery" {
		t.Fatalf("search not trimmed: %+v", filters.Search)
	}
	if filters.Type == nil || string(*filters.Type) != "instagram" {
		t.Fatalf("type parse failed: %+v", filters.Type)
	}
	if filters.CategoryID == nil || *filters.CategoryID != "cat-1" {
		t.Fatalf("category parse failed: %+v", filters.CategoryID)
	}
	if filters.OwnerID == nil || *filters.OwnerID != "user-1" {
		t.Fatalf("owner parse failed: %+v", filters.OwnerID)
	}
	if filters.Limit != 50 {
		t.Fatalf("limit not parsed: %d", filters.Limit)
	}
}

func TestBuildAccountFilters_TypeAll(t *testing.T) {
	values, _ := url.ParseQuery("type=all")
	filters, err := buildAccountFilters(values)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filters.Type != nil {
		t.Fatalf("type=all should not filter, got %+v", filters.Type)
	}
}

func TestBuildAccountFilters_InvalidValues(t *testing.T) {
	for _, query := range []string{"type=telegram", "limit=abc", "cursor=%%%not-base64"} {
		values, _ := url.ParseQuery(query)
		if _, err := buildAccountFilters(values); err == nil {
			t.Fatalf("expected error for %q", query)
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"Bearer  padded ", "padded"},
		{"bearer abc", ""},
		{"abc", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := bearerToken(c.header); got != c.want {
			t.Fatalf("bearerToken(%q) = %q, want %q", c.header, got, c.want)
		}
	}
}

func TestNormalizeStringPtr(t *testing.T) {
	if got := normalizeStringPtr(nil); got != nil {
		t.Fatalf("nil input should stay nil, got %v", *got)
	}
	empty := "   "
	if got := normalizeStringPtr(&empty); got != nil {
		t.Fatalf("blank input should become nil, got %q", *got)
	}
	val := " padded "
	got := normalizeStringPtr(&val)
	if got == nil || *got != "padded" {
		t.Fatalf("normalizeStringPtr(%q) = %v, want padded", val, got)
	}
}
