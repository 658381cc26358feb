package config

import "testing"

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("default addr = %q", cfg.HTTPAddr)
	}
	if cfg.Match.SearchLimit != 50 {
		t.Fatalf("default search limit = %d, want 50", cfg.Match.SearchLimit)
	}
	if cfg.Match.AutoAcceptThreshold <= cfg.Match.VerifyThreshold {
		t.Fatal("auto-accept threshold must sit above verify threshold")
	}
}

func TestLoadServerConfigOverrides(t *testing.T) {
	t.Setenv("MATCH_SEARCH_LIMIT", "25")
	t.Setenv("MATCH_COMBINED_TOLERANCE", "0.1")
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Match.SearchLimit != 25 {
		t.Fatalf("search limit = %d, want 25", cfg.Match.SearchLimit)
	}
	if cfg.Match.CombinedTolerance != 0.1 {
		t.Fatalf("tolerance = %v, want 0.1", cfg.Match.CombinedTolerance)
	}
}

func TestLoadServerConfigRejectsBadValues(t *testing.T) {
	t.Setenv("MATCH_SEARCH_LIMIT", "0")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected error for zero search limit")
	}

	t.Setenv("MATCH_SEARCH_LIMIT", "not-a-number")
	if _, err := LoadServerConfig(); err == nil {
		t.Fatal("expected error for malformed int")
	}
}
