// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package waf

import (
	"testing"

	"github.com/clipdeck/sentinel/internal/threat"
)

func findSignal(signals []threat.Signal, category Category) *threat.Signal {
	for i := range signals {
		if signals[i].Category == string(category) {
			return &signals[i]
		}
	}
	return nil
}

func TestInspectSQLInjection(t *testing.T) {
	inspector := NewInspector()

	tests := []struct {
		name string
		body string
	}{
		{"classic drop table", `{"username": "'; DROP TABLE users; --"}`},
		{"union select", "id=1 UNION SELECT password FROM accounts"},
		{"tautology", `name=' OR '1'='1`},
		{"stacked query", "q=1; DROP database prod"},
		{"sleep probe", "id=1 AND SLEEP(5)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := inspector.Inspect(&RequestContext{
				Method: "POST",
				Path:   "/api/v1/login",
				Body:   tt.body,
			})
			sig := findSignal(signals, CategorySQLInjection)
			if sig == nil {
				t.Fatalf("expected sql_injection signal for %q", tt.body)
			}
			if sig.Severity != threat.SeverityCritical {
				t.Errorf("sql_injection severity = %s, want %s", sig.Severity, threat.SeverityCritical)
			}
		})
	}
}

func TestInspectXSS(t *testing.T) {
	inspector := NewInspector()

	tests := []struct {
		name    string
		payload string
	}{
		{"script tag", `comment=<script>alert(1)</script>`},
		{"javascript uri", `href=javascript:alert(document.cookie)`},
		{"event handler", `<img src=x onerror=alert(1)>`},
		{"iframe", `<iframe src="https://evil.example"></iframe>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := inspector.Inspect(&RequestContext{Query: tt.payload})
			sig := findSignal(signals, CategoryXSS)
			if sig == nil {
				t.Fatalf("expected xss signal for %q", tt.payload)
			}
			if sig.Severity != threat.SeverityHigh {
				t.Errorf("xss severity = %s, want %s", sig.Severity, threat.SeverityHigh)
			}
		})
	}
}

func TestInspectCommandInjection(t *testing.T) {
	inspector := NewInspector()

	signals := inspector.Inspect(&RequestContext{
		Query: "file=report.pdf; cat /etc/passwd",
	})
	sig := findSignal(signals, CategoryCommandInjection)
	if sig == nil {
		t.Fatal("expected command_injection signal")
	}
	if sig.Severity != threat.SeverityCritical {
		t.Errorf("command_injection severity = %s, want %s", sig.Severity, threat.SeverityCritical)
	}
}

func TestInspectPathTraversal(t *testing.T) {
	inspector := NewInspector()

	signals := inspector.Inspect(&RequestContext{
		Path: "/files/../../etc/passwd",
	})
	if findSignal(signals, CategoryPathTraversal) == nil {
		t.Fatal("expected path_traversal signal")
	}
}

func TestInspectMaliciousUserAgent(t *testing.T) {
	inspector := NewInspector()

	signals := inspector.Inspect(&RequestContext{
		Path:      "/api/v1/videos",
		UserAgent: "sqlmap/1.7.2#stable (https://sqlmap.org)",
	})
	sig := findSignal(signals, CategoryMaliciousUserAgent)
	if sig == nil {
		t.Fatal("expected malicious_user_agent signal")
	}
	if sig.Severity != threat.SeverityHigh {
		t.Errorf("malicious_user_agent severity = %s, want %s", sig.Severity, threat.SeverityHigh)
	}
}

func TestInspectCaseInsensitive(t *testing.T) {
	inspector := NewInspector()

	signals := inspector.Inspect(&RequestContext{
		Body: "UnIoN SeLeCt password FROM users",
	})
	if findSignal(signals, CategorySQLInjection) == nil {
		t.Fatal("matching must be case-insensitive")
	}
}

func TestInspectOneSignalPerCategory(t *testing.T) {
	inspector := NewInspector()

	// Matches both sql_union_select and sql_stacked_query.
	signals := inspector.Inspect(&RequestContext{
		Body: "1 UNION SELECT a FROM b; DROP TABLE users",
	})

	count := 0
	for _, sig := range signals {
		if sig.Category == string(CategorySQLInjection) {
			count++
		}
	}
	if count != 1 {
		t.Errorf("sql_injection signals = %d, want exactly 1 (first match wins)", count)
	}
	if signals[0].Rule != "sql_union_select" {
		t.Errorf("winning rule = %s, want sql_union_select (table order)", signals[0].Rule)
	}
}

func TestInspectCleanRequest(t *testing.T) {
	inspector := NewInspector()

	signals := inspector.Inspect(&RequestContext{
		Method:    "GET",
		Path:      "/api/v1/videos/42",
		Query:     "page=2&limit=50",
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)",
	})
	if len(signals) != 0 {
		t.Errorf("clean request produced %d signals, want 0: %+v", len(signals), signals)
	}
}

func TestInspectCustomRule(t *testing.T) {
	rule, err := CompileRule(CategorySQLInjection, "custom_probe", `xp_cmdshell`, "")
	if err != nil {
		t.Fatalf("CompileRule failed: %v", err)
	}
	if rule.Severity != threat.SeverityCritical {
		t.Errorf("custom rule severity = %s, want category default %s", rule.Severity, threat.SeverityCritical)
	}

	inspector := NewInspector(rule)
	signals := inspector.Inspect(&RequestContext{Body: "EXEC xp_cmdshell 'dir'"})
	if findSignal(signals, CategorySQLInjection) == nil {
		t.Fatal("custom rule did not match")
	}
}

func TestCompileRuleInvalidPattern(t *testing.T) {
	if _, err := CompileRule(CategoryXSS, "broken", `(unclosed`, ""); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestHasCriticalAndHasHigh(t *testing.T) {
	signals := []threat.Signal{
		{Category: "xss", Severity: threat.SeverityHigh},
		{Category: "sql_injection", Severity: threat.SeverityCritical},
	}
	if !HasCritical(signals) {
		t.Error("HasCritical = false, want true")
	}
	if !HasHigh(signals) {
		t.Error("HasHigh = false, want true")
	}
	if HasCritical(signals[:1]) {
		t.Error("HasCritical on high-only slice = true, want false")
	}
}
