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
	"strings"
	"time"
)

// MaxDOMSnippetChars bounds how much page content is carried into the
// instruction bundle's context block.
const MaxDOMSnippetChars = 15000

// Input is one classification request: the raw chat message plus the page
// snapshot the extension captured alongside it.
type Input struct {
	// RawMessage is the user's message, possibly prefixed or suffixed with
	// machine-generated tokens from the extension UI.
	RawMessage string

	// ContextURL is the admin-center URL the extension observed.
	ContextURL string

	// DOMSnippet is a simplified serialization of the visible form. May be
	// empty. Callers should treat anything past MaxDOMSnippetChars as
	// truncated.
	DOMSnippet string
}

// Result is the classification outcome. Phase is always set; Naming is
// non-nil only for phases that carry deterministic naming parameters.
type Result struct {
	Phase  Phase
	Naming *NamingParams
}

// rule is one entry of the ordered classification table. match inspects the
// lower-cased message together with the full input; extract, when set,
// computes phase parameters from the original (case-preserved) message.
type rule struct {
	name    string
	match   func(lowerMsg string, in Input) bool
	phase   Phase
	extract bool
}

// Classifier resolves inputs to wizard phases. It is stateless apart from
// the injected clock, so a single instance is safe for concurrent use.
type Classifier struct {
	now func() time.Time
}

// NewClassifier returns a Classifier using the wall clock.
func NewClassifier() *Classifier {
	return &Classifier{now: time.Now}
}

// NewClassifierWithClock returns a Classifier with a fixed clock source.
// Tests use this to pin the date embedded in naming suggestions.
func NewClassifierWithClock(now func() time.Time) *Classifier {
	return &Classifier{now: now}
}

// Classify resolves the input to exactly one phase. It is total: any input
// that matches no rule resolves to PhaseGenericField.
//
// Rule priority is significant and fixed:
//  1. canonical action tokens (machine intent, exact substring),
//  2. phase-continuation markers (machine-asserted step completion),
//  3. field keyword sets, specific before generic,
//  4. URL heuristics,
//  5. generic fallback.
//
// A message carrying both a machine token and a field keyword must resolve
// to the machine token's phase; the keyword rules sit strictly below the
// token rules to guarantee that.
func (c *Classifier) Classify(in Input) Result {
	lower := strings.ToLower(in.RawMessage)

	for _, r := range classificationRules {
		if !r.match(lower, in) {
			continue
		}
		res := Result{Phase: r.phase}
		if r.extract {
			params := extractNamingParams(in.RawMessage, c.now())
			res.Naming = &params
		}
		return res
	}
	return Result{Phase: PhaseGenericField}
}

// contains reports whether lowerMsg contains token. Split out for readability
// of the rule table below.
func contains(token string) func(string, Input) bool {
	return func(lowerMsg string, _ Input) bool {
		return strings.Contains(lowerMsg, token)
	}
}

// containsAny reports whether lowerMsg contains any of the tokens.
func containsAny(tokens ...string) func(string, Input) bool {
	return func(lowerMsg string, _ Input) bool {
		for _, t := range tokens {
			if strings.Contains(lowerMsg, t) {
				return true
			}
		}
		return false
	}
}

// containsAll reports whether lowerMsg contains every token.
func containsAll(tokens ...string) func(string, Input) bool {
	return func(lowerMsg string, _ Input) bool {
		for _, t := range tokens {
			if !strings.Contains(lowerMsg, t) {
				return false
			}
		}
		return true
	}
}

// urlContains matches on the context URL instead of the message.
func urlContains(fragment string) func(string, Input) bool {
	return func(_ string, in Input) bool {
		return strings.Contains(strings.ToLower(in.ContextURL), fragment)
	}
}

// classificationRules is the ordered priority table. Entries are evaluated
// top-down; the first match wins. Reordering entries changes observable
// behavior, so additions belong in the block matching their priority tier.
var classificationRules = []rule{
	// Tier 1: canonical action tokens emitted by the extension's own UI.
	// These represent unambiguous machine intent and win outright.
	{"action start-setup", contains("action:start-setup"), PhaseWelcomeIntro, false},
	{"action open-gallery", contains("action:open-gallery"), PhaseConnectorGallery, false},
	{"action agent-install-phase2", contains("action:agent-install-phase2"), PhaseAgentInstallPhase2, false},
	{"action agent-install-phase3", contains("action:agent-install-phase3"), PhaseAgentInstallPhase3, false},
	{"action agent-install-phase4", contains("action:agent-install-phase4"), PhaseAgentInstallPhase4, false},
	{"action agent-install-start", contains("action:agent-install"), PhaseAgentInstallPhase1, false},
	{"action agent-health-check", contains("action:agent-health-check"), PhaseAgentHealthCheck, false},
	{"action jira-oauth", contains("action:jira-oauth"), PhaseJiraOAuthGuide, false},
	{"action jira-pat", contains("action:jira-pat"), PhaseJiraPATGuide, false},
	{"action test-connection", contains("action:test-connection"), PhaseTestConnectionGuide, false},
	{"action error-recovery", contains("action:error-recovery"), PhaseErrorRecoveryGuide, false},
	{"action setup-complete", contains("action:setup-complete"), PhaseCompletionSummary, false},

	// Tier 2: phase-continuation markers from the agent install walkthrough.
	// "phase N complete" advances to the next step; a bare "phase N" marker
	// re-anchors the current step. Both are machine-asserted and must
	// suppress any field keyword also present in the message.
	{"phase 1 complete", contains("phase 1 complete"), PhaseAgentInstallPhase2, false},
	{"phase 2 complete", contains("phase 2 complete"), PhaseAgentInstallPhase3, false},
	{"phase 3 complete", contains("phase 3 complete"), PhaseAgentInstallPhase4, false},
	{"phase 4 complete", contains("phase 4 complete"), PhaseAgentHealthCheck, false},
	{"phase 1 marker", contains("phase 1"), PhaseAgentInstallPhase1, false},
	{"phase 2 marker", contains("phase 2"), PhaseAgentInstallPhase2, false},
	{"phase 3 marker", contains("phase 3"), PhaseAgentInstallPhase3, false},
	{"phase 4 marker", contains("phase 4"), PhaseAgentInstallPhase4, false},

	// Tier 3: field keyword sets against the lower-cased message.
	// Specific sets precede generic ones: "connection id" before "name",
	// "client secret" before "client id", the Jira URL suppression before
	// the generic service URL rule.
	{"connection id", contains("connection id"), PhaseConnectionIDField, false},
	{"display name", containsAny("display name", "name"), PhaseNamingField, true},
	{"description", contains("description"), PhaseDescriptionField, true},
	{"client secret", contains("client secret"), PhaseOAuthClientSecretField, false},
	{"client id", contains("client id"), PhaseOAuthClientIDField, false},
	{"jira oauth", containsAll("jira", "oauth"), PhaseJiraOAuthGuide, false},
	{"personal access token", containsAny("personal access token", "pat token"), PhaseJiraPATGuide, false},
	{"authentication", containsAny("authentication", "auth type", "credential"), PhaseAuthTypeField, false},
	{"agent dropdown", containsAny("graph connector agent", "agent"), PhaseAgentDropdownField, false},
	{"crawl schedule", containsAny("crawl schedule", "full crawl"), PhaseCrawlScheduleField, false},
	{"incremental crawl", contains("incremental"), PhaseIncrementalCrawlField, false},
	{"identity mapping", containsAny("identity mapping", "identities"), PhaseIdentityMappingField, false},
	{"property schema", containsAny("property", "schema"), PhasePropertySchemaGuide, false},
	{"preview data", contains("preview"), PhasePreviewDataGuide, false},
	{"result type", contains("result type"), PhaseResultTypeGuide, false},
	{"vertical", contains("vertical"), PhaseVerticalSetupGuide, false},
	{"rollout", containsAny("rollout", "roll out"), PhaseRolloutField, false},
	{"search box suppression", contains("search"), PhaseSuppressedField, false},
	{"jira url suppression", containsAll("url", "jira"), PhaseSuppressedField, false},
	{"service url", containsAny("service url", "site url"), PhaseServiceURLField, false},

	// Tier 4: URL heuristics. Weakest signal above the fallback; only fire
	// when nothing in the message itself resolved.
	{"new connector url", urlContains("/search/connectors/new"), PhaseWelcomeIntro, false},
	{"connector gallery url", urlContains("/search/connectors"), PhaseConnectorGallery, false},
}
