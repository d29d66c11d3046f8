// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package wizard

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// NamingParams holds the deterministic values computed for naming and
// description phases. SuggestedName is a hard constraint embedded verbatim in
// the instruction template; the completion backend is told to reproduce it
// byte-for-byte rather than invent its own.
type NamingParams struct {
	// ToolName is the detected product identity, e.g. "Jira".
	ToolName string

	// ObjectNoun describes the objects the connector indexes, e.g. "Tickets".
	ObjectNoun string

	// SuggestedName is "{ToolName} {ObjectNoun} {YYYYMMDD}".
	SuggestedName string
}

// toolKeyword maps a message substring to a tool identity. Entries are
// evaluated in order; the first match wins, so more specific spellings must
// precede shorter ones.
type toolKeyword struct {
	keyword    string
	toolName   string
	objectNoun string
}

// toolKeywords is the fixed detection table. Order is part of the contract:
// "azure devops" must be checked before a bare "ado" token would be, and the
// generic "media" entry sits last so it cannot shadow product names.
var toolKeywords = []toolKeyword{
	{"jira", "Jira", "Tickets"},
	{"servicenow", "ServiceNow", "Incidents"},
	{"oracle", "Oracle", "DB"},
	{"azure devops", "ADO", "WorkItems"},
	{"ado", "ADO", "WorkItems"},
	{"salesforce", "SFDC", "Accounts"},
	{"sfdc", "SFDC", "Accounts"},
	{"confluence", "Confluence", "Pages"},
	{"media", "MediaWiki", "Wikis"},
}

// connectorContextPattern extracts the quoted label the extension embeds when
// it knows which connector template the admin picked, e.g.
// "Connector context: 'Jira Cloud'".
var connectorContextPattern = regexp.MustCompile(`Connector context:\s*'([^']+)'`)

// defaultToolName and defaultObjectNoun are used when neither the keyword
// table nor the quoted context label yields a tool identity.
const (
	defaultToolName   = "Tool"
	defaultObjectNoun = "Items"
)

// extractNamingParams resolves the tool identity from the raw message and
// computes the suggested display name for the given day.
//
// Resolution order:
//  1. first toolKeywords entry found in the lower-cased message,
//  2. title-cased first token of a quoted "Connector context: '...'" label,
//  3. the Tool/Items default.
func extractNamingParams(rawMessage string, now time.Time) NamingParams {
	lower := strings.ToLower(rawMessage)

	toolName := defaultToolName
	objectNoun := defaultObjectNoun

	matched := false
	for _, tk := range toolKeywords {
		if strings.Contains(lower, tk.keyword) {
			toolName = tk.toolName
			objectNoun = tk.objectNoun
			matched = true
			break
		}
	}

	if !matched {
		if m := connectorContextPattern.FindStringSubmatch(rawMessage); m != nil {
			if first := firstToken(m[1]); first != "" {
				toolName = titleCase(first)
			}
		}
	}

	return NamingParams{
		ToolName:      toolName,
		ObjectNoun:    objectNoun,
		SuggestedName: fmt.Sprintf("%s %s %s", toolName, objectNoun, now.Format("20060102")),
	}
}

// firstToken returns the first space-separated token of s, or "".
func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// titleCase upper-cases the first rune and lower-cases the rest.
// strings.Title is deprecated and does per-word casing we do not want here.
func titleCase(s string) string {
	runes := []rune(strings.ToLower(s))
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
