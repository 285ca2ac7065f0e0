// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package audit

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/goccy/go-json"
)

// genericMaskThreshold is the length above which unrecognized string
// values get partial masking. Short values (IDs, enum labels) pass
// through.
const genericMaskThreshold = 20

// userAgentMaxLen is the stored user-agent length before truncation.
const userAgentMaxLen = 50

// MaskMetadata returns a deep copy of metadata with every recognized
// PII field irreversibly masked and unrecognized long strings
// partially masked. The input is never modified.
func MaskMetadata(metadata map[string]interface{}) map[string]interface{} {
	if metadata == nil {
		return nil
	}
	out := make(map[string]interface{}, len(metadata))
	for key, value := range metadata {
		out[key] = maskValue(key, value)
	}
	return out
}

// maskValue masks one value based on its key and shape.
func maskValue(key string, value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return maskString(key, v)
	case map[string]interface{}:
		return MaskMetadata(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = maskValue(key, item)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = MaskMetadata(item)
		}
		return out
	default:
		if flat, ok := flatten(value); ok {
			return maskValue(key, flat)
		}
		// Numbers, bools, nil carry no stored PII.
		return value
	}
}

// flatten converts typed composite values (structs, typed slices and
// maps) into the untyped JSON shape maskValue can walk, so a caller
// passing e.g. a typed signal slice cannot smuggle unmasked fields
// past the masker. Scalars report false. A composite that fails to
// marshal is replaced wholesale rather than stored raw.
func flatten(value interface{}) (interface{}, bool) {
	if value == nil {
		return nil, false
	}
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct, reflect.Slice, reflect.Array, reflect.Map:
	default:
		return nil, false
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return "***", true
	}
	var flat interface{}
	if err := json.Unmarshal(raw, &flat); err != nil {
		return "***", true
	}
	return flat, true
}

// maskString applies format-aware masking for recognized PII keys and
// generic partial masking for unrecognized long strings.
func maskString(key, value string) string {
	if value == "" {
		return value
	}

	switch {
	case keyMatches(key, "email"):
		return MaskEmail(value)
	case keyMatches(key, "useragent"):
		return TruncateUserAgent(value)
	case keyMatches(key, "ip", "ipaddress"):
		return MaskIP(value)
	case keyMatches(key, "phone"):
		return MaskPhone(value)
	case keyMatches(key, "name", "username"):
		return MaskName(value)
	case len(value) > genericMaskThreshold:
		return maskGeneric(value)
	default:
		return value
	}
}

// keyMatches reports whether a needle appears as a whole token (or a
// run of consecutive tokens) of the key, with a plural "s" tolerated.
// Token matching keeps "client_ip" and "sourceIP" recognized as IP
// keys without sweeping up "zip", "recipient" or "description".
func keyMatches(key string, needles ...string) bool {
	tokens := keyTokens(key)
	for _, needle := range needles {
		for i := range tokens {
			joined := ""
			for j := i; j < len(tokens); j++ {
				joined += tokens[j]
				if joined == needle || joined == needle+"s" {
					return true
				}
				if len(joined) > len(needle) {
					break
				}
			}
		}
	}
	return false
}

// keyTokens splits a key into lowercase tokens at separators and
// camelCase boundaries.
func keyTokens(key string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	runes := []rune(key)
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				flush()
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// MaskEmail masks an address keeping only the first character of the
// local part, the first character of the domain, and the TLD.
// "alice@example.com" becomes "a***@e***.com".
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***"
	}
	local, domain := email[:at], email[at+1:]

	masked := local[:1] + "***@" + domain[:1] + "***"
	if dot := strings.LastIndex(domain, "."); dot > 0 {
		masked += domain[dot:]
	}
	return masked
}

// MaskIP stars the host portion of an address. IPv4 keeps the first
// two octets: "10.0.0.7" becomes "10.0.*.*". IPv6 keeps the first
// group.
func MaskIP(ip string) string {
	if strings.Contains(ip, ":") {
		if i := strings.Index(ip, ":"); i > 0 {
			return ip[:i] + "::*"
		}
		return "***"
	}

	octets := strings.Split(ip, ".")
	if len(octets) != 4 {
		return "***"
	}
	return octets[0] + "." + octets[1] + ".*.*"
}

// ZeroLastOctet zeroes the final octet of an IPv4 address, the masking
// applied to the entry's top-level ip_address column. Non-IPv4 input
// falls back to MaskIP.
func ZeroLastOctet(ip string) string {
	octets := strings.Split(ip, ".")
	if len(octets) != 4 {
		return MaskIP(ip)
	}
	return octets[0] + "." + octets[1] + "." + octets[2] + ".0"
}

// MaskName keeps the first letter of each word.
// "Alice Smith" becomes "A*** S***".
func MaskName(name string) string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return "***"
	}
	for i, w := range words {
		words[i] = w[:1] + "***"
	}
	return strings.Join(words, " ")
}

// MaskPhone stars every digit except the last two, preserving
// separators. "+1-555-867-5309" becomes "+*-***-***-**09".
func MaskPhone(phone string) string {
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits <= 2 {
		return "***"
	}

	keepFrom := digits - 2
	seen := 0
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			if seen < keepFrom {
				b.WriteByte('*')
			} else {
				b.WriteRune(r)
			}
			seen++
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TruncateUserAgent truncates a user-agent string to 50 characters
// with an ellipsis.
func TruncateUserAgent(ua string) string {
	if len(ua) <= userAgentMaxLen {
		return ua
	}
	return ua[:userAgentMaxLen] + "..."
}

// maskGeneric keeps the first and last four characters of a long
// string, the same shape the security logger uses for tokens.
func maskGeneric(s string) string {
	if len(s) <= 12 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
