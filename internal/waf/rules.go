// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

// Package waf provides pattern-based request-content inspection.
//
// Every rule lives in one declarative table: category, name, compiled
// pattern, severity. The table is built once at startup; an invalid
// custom pattern fails startup instead of degrading at runtime.
package waf

import (
	"fmt"
	"regexp"

	"github.com/clipdeck/sentinel/internal/threat"
)

// Category is a threat category inspected by the WAF.
type Category string

const (
	CategorySQLInjection     Category = "sql_injection"
	CategoryXSS              Category = "xss"
	CategoryCommandInjection Category = "command_injection"
	CategoryPathTraversal    Category = "path_traversal"
	CategoryLDAPInjection    Category = "ldap_injection"
	CategoryNoSQLInjection   Category = "nosql_injection"

	// CategoryMaliciousUserAgent is checked against the user-agent
	// header only, independently of the content categories.
	CategoryMaliciousUserAgent Category = "malicious_user_agent"
)

// categorySeverity is the fixed severity lookup per category.
var categorySeverity = map[Category]threat.Severity{
	CategorySQLInjection:       threat.SeverityCritical,
	CategoryCommandInjection:   threat.SeverityCritical,
	CategoryXSS:                threat.SeverityHigh,
	CategoryPathTraversal:      threat.SeverityHigh,
	CategoryMaliciousUserAgent: threat.SeverityHigh,
	CategoryLDAPInjection:      threat.SeverityMedium,
	CategoryNoSQLInjection:     threat.SeverityMedium,
}

// CategorySeverity returns the fixed severity for a category, defaulting
// to medium for operator-defined categories without an entry.
func CategorySeverity(c Category) threat.Severity {
	if sev, ok := categorySeverity[c]; ok {
		return sev
	}
	return threat.SeverityMedium
}

// Rule is one compiled inspection rule.
type Rule struct {
	Category Category
	Name     string
	Pattern  *regexp.Regexp
	Severity threat.Severity
}

// ruleSpec is the source form of a built-in rule. Patterns are matched
// against a lowercased blob, so they are written lowercase.
type ruleSpec struct {
	category Category
	name     string
	pattern  string
}

// builtinRuleSpecs is ordered: within a category the first matching
// rule wins and no further rules in that category are evaluated.
var builtinRuleSpecs = []ruleSpec{
	// SQL injection
	{CategorySQLInjection, "sql_union_select", `union(\s+all)?\s+select`},
	{CategorySQLInjection, "sql_statement", `\b(select\s+[\w*,\s]+\bfrom|insert\s+into|drop\s+table|truncate\s+table|delete\s+from|update\s+\w+\s+set)\b`},
	{CategorySQLInjection, "sql_tautology", `('|%27|")\s*(or|and)\s+[\w'"]+\s*=\s*[\w'"]+`},
	{CategorySQLInjection, "sql_stacked_query", `;\s*(drop|alter|create|exec|execute|shutdown)\b`},
	{CategorySQLInjection, "sql_comment_evasion", `('|%27)\s*(--|#|/\*)`},
	{CategorySQLInjection, "sql_sleep_probe", `\b(sleep|benchmark|waitfor\s+delay|pg_sleep)\s*\(`},

	// Cross-site scripting
	{CategoryXSS, "xss_script_tag", `<\s*script[^>]*>`},
	{CategoryXSS, "xss_javascript_uri", `javascript\s*:`},
	{CategoryXSS, "xss_event_handler", `\bon(error|load|click|mouseover|focus|submit)\s*=`},
	{CategoryXSS, "xss_iframe_embed", `<\s*(iframe|object|embed)\b`},
	{CategoryXSS, "xss_dom_access", `document\s*\.\s*(cookie|write|location)`},

	// Command injection
	{CategoryCommandInjection, "cmd_chained_binary", `[;&|]\s*(cat|ls|pwd|whoami|id|uname|rm|wget|curl|nc|bash|sh|powershell|cmd)\b`},
	{CategoryCommandInjection, "cmd_substitution", "\\$\\(|`[^`]+`"},
	{CategoryCommandInjection, "cmd_sensitive_read", `\b(cat|type|more|less)\s+/?(etc/passwd|etc/shadow|proc/self)`},
	{CategoryCommandInjection, "cmd_reverse_shell", `(nc|ncat|netcat)\s+(-e|-c)\s`},

	// Path traversal
	{CategoryPathTraversal, "path_dotdot", `\.\./|\.\.\\`},
	{CategoryPathTraversal, "path_dotdot_encoded", `%2e%2e(%2f|%5c|/)|\.%2e/|%2e\./`},
	{CategoryPathTraversal, "path_sensitive_file", `/etc/(passwd|shadow|hosts)|c:\\(windows|boot\.ini)`},

	// LDAP injection
	{CategoryLDAPInjection, "ldap_filter_injection", `\(\s*[|&!]\s*\(`},
	{CategoryLDAPInjection, "ldap_wildcard_bind", `[=(]\s*\*\s*\)`},
	{CategoryLDAPInjection, "ldap_attribute_probe", `\)\s*\(\s*(cn|uid|objectclass)\s*=`},

	// NoSQL injection
	{CategoryNoSQLInjection, "nosql_operator", `\$(where|ne|gt|gte|lt|lte|regex|exists|nin)\b`},
	{CategoryNoSQLInjection, "nosql_json_operator", `[{,]\s*("|')?\$\w+("|')?\s*:`},
}

// maliciousUserAgents lists substrings of known attack-tool user
// agents. Matched case-insensitively against the raw user-agent.
var maliciousUserAgents = []string{
	"sqlmap",
	"nikto",
	"metasploit",
	"nmap",
	"masscan",
	"hydra",
	"burp",
	"dirbuster",
	"gobuster",
	"wpscan",
	"acunetix",
	"nessus",
	"zgrab",
	"w3af",
	"havij",
}

// builtinRules compiles the built-in table. Built-in patterns are
// covered by tests, so compilation failure is a programming error.
func builtinRules() []Rule {
	rules := make([]Rule, 0, len(builtinRuleSpecs))
	for _, spec := range builtinRuleSpecs {
		rules = append(rules, Rule{
			Category: spec.category,
			Name:     spec.name,
			Pattern:  regexp.MustCompile(spec.pattern),
			Severity: CategorySeverity(spec.category),
		})
	}
	return rules
}

// CompileRule compiles an operator-supplied rule. Errors here are
// fatal at startup.
func CompileRule(category Category, name, pattern string, severity threat.Severity) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("waf rule %s/%s: invalid pattern: %w", category, name, err)
	}
	if severity == "" {
		severity = CategorySeverity(category)
	}
	return Rule{Category: category, Name: name, Pattern: re, Severity: severity}, nil
}
