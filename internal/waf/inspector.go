// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package waf

import (
	"strings"

	"github.com/clipdeck/sentinel/internal/logging"
	"github.com/clipdeck/sentinel/internal/threat"
)

// RequestContext is the inspected slice of an HTTP request. The
// middleware builds it once per request; the inspector never touches
// the live *http.Request.
type RequestContext struct {
	Method    string
	URL       string
	Path      string
	Query     string
	Body      string
	UserAgent string

	// Params are resolved path parameters, if the router supplies them.
	Params map[string]string
}

// Inspector matches request content against the rule table.
type Inspector struct {
	rules   []Rule
	uaTools []string
}

// NewInspector builds an inspector from the built-in table plus any
// extra rules. Extra rules are appended after the built-ins, so within
// a category the built-ins take first-match priority.
func NewInspector(extra ...Rule) *Inspector {
	return &Inspector{
		rules:   append(builtinRules(), extra...),
		uaTools: maliciousUserAgents,
	}
}

// Inspect tests the request against every category and returns at most
// one signal per category: the first matching rule wins and the rest
// of that category is skipped. All returned signals carry the fixed
// category severity. Inspect never blocks by itself; the caller
// applies the blocking policy.
func (i *Inspector) Inspect(rc *RequestContext) []threat.Signal {
	blob := i.buildBlob(rc)

	var signals []threat.Signal
	matched := make(map[Category]bool)

	for idx := range i.rules {
		rule := &i.rules[idx]
		if matched[rule.Category] {
			continue
		}
		if rule.Pattern.MatchString(blob) {
			matched[rule.Category] = true
			signals = append(signals, threat.Signal{
				Category: string(rule.Category),
				Rule:     rule.Name,
				Severity: rule.Severity,
				Details:  "pattern " + rule.Name + " matched request content",
			})
		}
	}

	if sig, ok := i.inspectUserAgent(rc.UserAgent); ok {
		signals = append(signals, sig)
	}

	if len(signals) > 0 {
		logging.Debug().
			Int("signals", len(signals)).
			Str("path", rc.Path).
			Msg("waf matched request")
	}
	return signals
}

// buildBlob concatenates every inspected surface into one lowercase
// string. Lowercasing once here keeps the rule table free of
// case-insensitivity flags.
func (i *Inspector) buildBlob(rc *RequestContext) string {
	var b strings.Builder
	b.Grow(len(rc.Body) + len(rc.Query) + len(rc.URL) + len(rc.UserAgent) + 64)

	b.WriteString(rc.Body)
	b.WriteByte(' ')
	b.WriteString(rc.Query)
	b.WriteByte(' ')
	b.WriteString(rc.Path)
	b.WriteByte(' ')
	b.WriteString(rc.URL)
	b.WriteByte(' ')
	b.WriteString(rc.UserAgent)
	for _, v := range rc.Params {
		b.WriteByte(' ')
		b.WriteString(v)
	}

	return strings.ToLower(b.String())
}

// inspectUserAgent checks the user-agent against the known attack-tool
// list. This category is independent of the content rules.
func (i *Inspector) inspectUserAgent(ua string) (threat.Signal, bool) {
	if ua == "" {
		return threat.Signal{}, false
	}

	lower := strings.ToLower(ua)
	for _, tool := range i.uaTools {
		if strings.Contains(lower, tool) {
			return threat.Signal{
				Category: string(CategoryMaliciousUserAgent),
				Rule:     "ua_" + tool,
				Severity: CategorySeverity(CategoryMaliciousUserAgent),
				Details:  "user agent matches known tool " + tool,
			}, true
		}
	}
	return threat.Signal{}, false
}

// HasCritical reports whether any signal is critical severity.
func HasCritical(signals []threat.Signal) bool {
	for i := range signals {
		if signals[i].Severity == threat.SeverityCritical {
			return true
		}
	}
	return false
}

// HasHigh reports whether any signal is high severity.
func HasHigh(signals []threat.Signal) bool {
	for i := range signals {
		if signals[i].Severity == threat.SeverityHigh {
			return true
		}
	}
	return false
}
