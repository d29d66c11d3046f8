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
	"strings"
	"time"
	"unicode/utf8"
)

// fence is the Markdown code fence. Templates are raw strings, which cannot
// contain backticks, so fences are interpolated.
const fence = "```"

// InstructionBundle is the fully composed payload for one chat turn against
// the completion backend: scripted instructions, page context, user text.
type InstructionBundle struct {
	// SystemPrompt is the phase-specific scripted instruction. Deterministic
	// values (naming suggestions) are already substituted in.
	SystemPrompt string

	// ContextBlock carries the observed URL and the bounded DOM snippet.
	ContextBlock string

	// UserMessage is the admin's raw message, passed through unmodified.
	UserMessage string
}

// Selector maps a classification result to an instruction bundle. Stateless
// apart from the clock used for the defensive naming-params fallback; safe
// for concurrent use.
type Selector struct {
	now func() time.Time
}

// NewSelector returns a Selector using the wall clock.
func NewSelector() *Selector {
	return &Selector{now: time.Now}
}

// NewSelectorWithClock pins the clock, for tests.
func NewSelectorWithClock(now func() time.Time) *Selector {
	return &Selector{now: now}
}

// BuildBundle composes the instruction bundle for the resolved phase.
//
// Every phase in AllPhases has a template; an unknown phase falls back to the
// generic template so the function stays total. For PhaseNamingField and
// PhaseDescriptionField the classifier's computed params are substituted
// verbatim; the templates mark them as mandatory so the completion backend
// reproduces rather than reinvents them.
func (s *Selector) BuildBundle(res Result, in Input) InstructionBundle {
	builder, ok := phaseTemplates[res.Phase]
	if !ok {
		builder = genericFieldTemplate
	}

	naming := res.Naming
	if naming == nil {
		// Handlers always pass the classifier's result, but the selector
		// must not panic if called with a bare phase.
		p := extractNamingParams(in.RawMessage, s.now())
		naming = &p
	}

	return InstructionBundle{
		SystemPrompt: builder(*naming),
		ContextBlock: buildContextBlock(in),
		UserMessage:  in.RawMessage,
	}
}

// buildContextBlock frames the observed URL and page DOM for the completion
// backend. The snippet is capped at MaxDOMSnippetChars so an oversized page
// cannot blow out the request.
func buildContextBlock(in Input) string {
	if in.DOMSnippet == "" {
		return fmt.Sprintf("Current URL: %s", in.ContextURL)
	}
	snippet := in.DOMSnippet
	if len(snippet) > MaxDOMSnippetChars {
		cut := MaxDOMSnippetChars
		// Back off to a rune start so the cap never splits a multibyte
		// character and feeds invalid UTF-8 to the backend.
		for cut > 0 && !utf8.RuneStart(snippet[cut]) {
			cut--
		}
		snippet = snippet[:cut]
	}
	return fmt.Sprintf("Current URL: %s\n\n[Simplified Page DOM]\n%s", in.ContextURL, snippet)
}

// templateFunc renders one phase's system prompt. Naming params are passed to
// every builder; most ignore them.
type templateFunc func(NamingParams) string

// insightSuggestionContract is appended to templates that do not spell out a
// bespoke output format. The two-part shape is advisory: the backend is
// instructed to honor it, nothing downstream enforces it.
const insightSuggestionContract = `
**Output Format**:
**Insight**: [What this step is and any warnings]
**Suggestion**: [The concrete value or action to take]`

// phaseTemplates maps every Phase to its template. The exhaustiveness test
// walks AllPhases against this map.
var phaseTemplates = map[Phase]templateFunc{
	PhaseWelcomeIntro:           welcomeIntroTemplate,
	PhaseConnectorGallery:       connectorGalleryTemplate,
	PhaseNamingField:            namingFieldTemplate,
	PhaseConnectionIDField:      connectionIDTemplate,
	PhaseDescriptionField:       descriptionFieldTemplate,
	PhaseServiceURLField:        serviceURLTemplate,
	PhaseAuthTypeField:          authTypeTemplate,
	PhaseOAuthClientIDField:     oauthClientIDTemplate,
	PhaseOAuthClientSecretField: oauthClientSecretTemplate,
	PhaseJiraOAuthGuide:         jiraOAuthGuideTemplate,
	PhaseJiraPATGuide:           jiraPATGuideTemplate,
	PhaseAgentDropdownField:     agentDropdownTemplate,
	PhaseAgentInstallPhase1:     agentInstallPhase1Template,
	PhaseAgentInstallPhase2:     agentInstallPhase2Template,
	PhaseAgentInstallPhase3:     agentInstallPhase3Template,
	PhaseAgentInstallPhase4:     agentInstallPhase4Template,
	PhaseAgentHealthCheck:       agentHealthCheckTemplate,
	PhaseRolloutField:           rolloutTemplate,
	PhasePropertySchemaGuide:    propertySchemaTemplate,
	PhasePreviewDataGuide:       previewDataTemplate,
	PhaseCrawlScheduleField:     crawlScheduleTemplate,
	PhaseIncrementalCrawlField:  incrementalCrawlTemplate,
	PhaseIdentityMappingField:   identityMappingTemplate,
	PhaseResultTypeGuide:        resultTypeTemplate,
	PhaseVerticalSetupGuide:     verticalSetupTemplate,
	PhaseTestConnectionGuide:    testConnectionTemplate,
	PhaseErrorRecoveryGuide:     errorRecoveryTemplate,
	PhaseCompletionSummary:      completionSummaryTemplate,
	PhaseSuppressedField:        suppressedFieldTemplate,
	PhaseGenericField:           genericFieldTemplate,
}

func namingFieldTemplate(p NamingParams) string {
	return fmt.Sprintf(`You are a helpful assistant guiding a user to name their Graph Connector.
The user is focused on the 'Display Name' field.

**Key Insight**: The Display Name impacts search ranking.
- **Identity**: The name MUST start with **%[1]s**.
- **Content**: It must describe the *objects* (e.g. %[2]s), NOT the platform edition.

**CONSTRAINT**:
1. Max Length: **30 chars**.
2. **MANDATORY SUGGESTION**: You MUST use exactly this value: "%[3]s"

**Your Task**:
1. Insight: Explain why '%[3]s' is the best choice (Identity + Content + Date). **Must insert a blank line between each numbered point for readability.**
2. Suggestion: Output the exact calculated string below within a text code block to prevent formatting issues.

**Output Format**:
**Insight**:
[Point 1]

[Point 2]

[Point 3]
**Suggestion**:
%[4]stext
%[3]s
%[4]s`, p.ToolName, p.ObjectNoun, p.SuggestedName, fence)
}

func descriptionFieldTemplate(p NamingParams) string {
	return fmt.Sprintf(`You are a helpful assistant guiding a user to write a description for their Graph Connector.
The user is focused on the 'Description' field.

**Key Insight**: This field is the main source for semantic matching in the Skill Discovery layer.
- The description must clearly describe **WHAT** the data is (e.g., "Software development tasks") and **HOW** it helps (e.g., "Track bugs and features").
- Low-quality descriptions (e.g., "Test Connector") may cause the tool to be filtered out because the semantic distance > 0.6.

**Your Task**:
1. Warn against generic descriptions.
2. Provide a keyword-rich template.

**Output Format**:
**Insight**: [Warning and Strategy]
**Suggestion**: %[3]sContains all active %[1]s %[2]s, [Synonym1], and [Synonym2] for [Action].%[3]s`,
		p.ToolName, p.ObjectNoun, fence)
}

func agentDropdownTemplate(NamingParams) string {
	return fmt.Sprintf(`You are an expert on the 'Microsoft Graph Connector Agent'.
The user is focusing on the 'Graph Connector Agent' dropdown field.

**Scenarios & Responses**:

1. **If the dropdown is EMPTY (No options):**
   - The user needs to install the agent locally.

   - **Step 1**: Provide the download link: [Download Graph Connector Agent](https://aka.ms/gca).
     (Do not use horizontal rules '---' between steps).

   - **Step 2**: Provide the **3 Mandatory PowerShell Commands** (in separate code blocks).
     First, provide the shortcut link: [Open PowerShell](action:open-powershell).
     Then, list the commands:
     %[1]spowershell
     Set-ExecutionPolicy -ExecutionPolicy RemoteSigned -Scope CurrentUser
     %[1]s
     %[1]spowershell
     Set-ExecutionPolicy -ExecutionPolicy RemoteSigned -Scope LocalMachine
     %[1]s
     %[1]spowershell
     Get-ExecutionPolicy -List
     %[1]s

   - **Step 3**: Verify Policy
     Ask the admin to confirm the output of %[1]sGet-ExecutionPolicy -List%[1]s matches this table EXACTLY (Render as Markdown Table):
     | Scope | ExecutionPolicy |
     | :--- | :--- |
     | CurrentUser | RemoteSigned |
     | LocalMachine | RemoteSigned |

   - **Step 4**: **Confirm & Proceed**
     State clearly: "If your output matches the table above, your environment is correctly configured. You can now proceed with the Graph Connector Agent installation/registration wizard."

2. **If the dropdown has options:**
   - Advise the user to simply select their registered agent.

**Output Format**:
**Insight**: [Explain that they need to select an active agent, or install one if none exist.]
**Suggestion**: [Follow the numbered steps above. Ensure there are blank lines between steps for readability.]`, fence)
}

func agentInstallPhase1Template(NamingParams) string {
	return fmt.Sprintf(`You are walking the admin through **Phase 1 of 4** of the Graph Connector Agent installation: preparing the host machine.

**Scripted Steps** (present exactly these, one code block per command):
1. Download the installer from [https://aka.ms/gca](https://aka.ms/gca).
2. Open PowerShell via [Open PowerShell](action:open-powershell) and set the execution policy:
   %[1]spowershell
   Set-ExecutionPolicy -ExecutionPolicy RemoteSigned -Scope CurrentUser
   %[1]s
   %[1]spowershell
   Set-ExecutionPolicy -ExecutionPolicy RemoteSigned -Scope LocalMachine
   %[1]s
3. Confirm with %[1]sGet-ExecutionPolicy -List%[1]s.

End by telling the admin to reply "phase 1 complete" when the policy output shows RemoteSigned for both scopes.
%[2]s`, fence, insightSuggestionContract)
}

func agentInstallPhase2Template(NamingParams) string {
	return `You are walking the admin through **Phase 2 of 4** of the Graph Connector Agent installation: running the installer.

**Scripted Steps**:
1. Run the downloaded GcaInstaller package as a local administrator.
2. Accept the license terms and keep the default install location.
3. Wait for the "Configure" screen; do NOT close the wizard.

End by telling the admin to reply "phase 2 complete" once the Configure screen is visible.
` + insightSuggestionContract
}

func agentInstallPhase3Template(NamingParams) string {
	return `You are walking the admin through **Phase 3 of 4** of the Graph Connector Agent installation: registering an app for the agent.

**Scripted Steps**:
1. In Entra admin center, create a new app registration (single tenant).
2. Record the Application (client) ID and Directory (tenant) ID.
3. Create a client secret and copy its value immediately; it is shown only once.
4. Grant the application the GraphConnectors.ReadWrite.All permission and consent.

End by telling the admin to reply "phase 3 complete" when the app ID, tenant ID, and secret are saved.
` + insightSuggestionContract
}

func agentInstallPhase4Template(NamingParams) string {
	return `You are walking the admin through **Phase 4 of 4** of the Graph Connector Agent installation: registering the agent.

**Scripted Steps**:
1. Back in the agent wizard's Configure screen, enter the app ID, tenant ID, and secret from Phase 3.
2. Click Register and wait for the success banner.
3. Return to the admin center and refresh the connection page; the agent should now appear in the dropdown.

End by telling the admin to reply "phase 4 complete" once the agent appears.
` + insightSuggestionContract
}

func agentHealthCheckTemplate(NamingParams) string {
	return `You verify a freshly installed Graph Connector Agent is healthy.

**Checks to present**:
1. The agent appears in the 'Graph Connector Agent' dropdown with a green/healthy status.
2. The GcaHost service is running on the host machine (services.msc).
3. The host can reach the Microsoft Graph endpoints (no proxy/firewall block).

If any check fails, identify which one and give the single next corrective action, not a full reinstall.
` + insightSuggestionContract
}

func authTypeTemplate(NamingParams) string {
	return `You are guiding the admin through the 'Authentication type' selection for their data source connection.

**Key Insight**: The choice is permanent for this connection.
- **OAuth 2.0** is preferred where the source supports it: secrets rotate, access is auditable.
- **Basic / username+password** should only be used for sources without OAuth support.
- Service account credentials must have read access to ALL content that should be searchable.

Explain only the options actually visible on screen.
` + insightSuggestionContract
}

func oauthClientIDTemplate(NamingParams) string {
	return `You are guiding the admin through the 'Client ID' input of an OAuth credential form.

**Key Insight**: This is the application (client) identifier from the OAuth app created in the source system, not a Microsoft value. It is not secret, but it must match the app the secret belongs to.
` + insightSuggestionContract
}

func oauthClientSecretTemplate(NamingParams) string {
	return `You are guiding the admin through the 'Client Secret' input of an OAuth credential form.

**Key Insight**: The secret is shown only once at creation time in the source system.
- If the admin no longer has it, they must generate a new secret; there is no way to reveal an old one.
- Warn about expiry: most source systems expire secrets after 6-24 months.
` + insightSuggestionContract
}

func jiraOAuthGuideTemplate(NamingParams) string {
	return `You are an expert on connecting Microsoft 365 to Jira via OAuth 2.0.

**Scripted Steps**:
1. In Jira, open Settings > Products > Application links (Data Center) or the developer console (Cloud).
2. Create an OAuth 2.0 integration; set the callback URL shown on the connection form.
3. Grant the read scopes for issues and projects.
4. Copy the Client ID and Secret into the connection form.

Keep each step short; the admin performs them in another tab.
` + insightSuggestionContract
}

func jiraPATGuideTemplate(NamingParams) string {
	return `You are an expert on connecting Microsoft 365 to Jira with a personal access token.

**Scripted Steps**:
1. In Jira, open Profile > Personal Access Tokens and create a token with read scope.
2. Copy the token immediately; Jira will not show it again.
3. Paste the token into the connection form's token field; the username field stays empty.

Remind the admin the token inherits their own permissions, so a service account is preferable.
` + insightSuggestionContract
}

func connectionIDTemplate(NamingParams) string {
	return `You are guiding the admin through the 'Connection ID' input.

**Key Insight**: The ID is immutable once created and must be unique in the tenant.
- 3-32 characters, letters and numbers only, no spaces or hyphens.
- Derive it from the display name, e.g. "Jira Tickets" -> "jiratickets".
` + insightSuggestionContract
}

func serviceURLTemplate(NamingParams) string {
	return `You are guiding the admin through the data source 'Service URL' input.

**Key Insight**: This must be the base URL of the source system, reachable from the Graph Connector Agent host (for on-premises sources) or from Microsoft's cloud.
- Include the scheme (https://), exclude trailing paths.
- A wrong URL surfaces later as a connection test failure, so verify it now.
` + insightSuggestionContract
}

func welcomeIntroTemplate(NamingParams) string {
	return `You greet an admin starting a new Graph connector setup.

Orient them in two sentences: what a connector does (brings external content into Microsoft Search and Copilot) and what the wizard will ask for (name, data source credentials, schema, rollout). Then point at the first visible field. Do not enumerate every future step.
` + insightSuggestionContract
}

func connectorGalleryTemplate(NamingParams) string {
	return `You help an admin choose a connector from the gallery.

Ask what system their data lives in if it is not obvious from the message, otherwise point directly at the matching gallery tile. Mention the custom connector option only if no tile matches.
` + insightSuggestionContract
}

func rolloutTemplate(NamingParams) string {
	return `You are guiding the admin through the rollout / audience step.

**Key Insight**: Rolling out to everyone makes results visible tenant-wide immediately.
- Recommend a limited audience (a pilot security group) for a first connection.
- The audience can be widened later without recrawling.
` + insightSuggestionContract
}

func propertySchemaTemplate(NamingParams) string {
	return `You are guiding the admin through the property-to-schema mapping table.

**Key Insight**: Only properties marked Searchable/Queryable/Retrievable are usable later; changing these flags after creation requires recreating the connection.
- Title and URL labels are mandatory for results to render.
- Keep Searchable to text-bearing fields; flags on numeric fields waste index capacity.

Explain only the rows visible in the table on screen.
` + insightSuggestionContract
}

func previewDataTemplate(NamingParams) string {
	return `You are guiding the admin through the data preview step.

**Key Insight**: The preview shows a sample of items fetched with the configured credentials. An empty preview almost always means a permissions problem on the service account, not a schema problem.
` + insightSuggestionContract
}

func crawlScheduleTemplate(NamingParams) string {
	return `You are guiding the admin through the full crawl schedule selector.

**Key Insight**: A full crawl re-reads every item; schedule it off-hours.
- Weekly is the right default for most sources.
- Daily full crawls are only needed when items are deleted frequently in the source.
` + insightSuggestionContract
}

func incrementalCrawlTemplate(NamingParams) string {
	return `You are guiding the admin through the incremental crawl selector.

**Key Insight**: Incremental crawls pick up changed items between full crawls.
- 15 minutes is the minimum and a good default.
- If the source rate-limits aggressively, widen the interval rather than disabling it.
` + insightSuggestionContract
}

func identityMappingTemplate(NamingParams) string {
	return `You are guiding the admin through the identity mapping step.

**Key Insight**: This controls search permission trimming.
- If source users sign in with the same Entra identities, choose the default mapping.
- Non-Entra identities need a mapping rule; until one exists those items are visible to no one, not to everyone.
` + insightSuggestionContract
}

func resultTypeTemplate(NamingParams) string {
	return `You are guiding the admin through creating a search result type for this connection.

**Key Insight**: Without a result type, items appear as bare links.
- Use the suggested layout and bind the title and URL properties first.
- The layout can be refined later without recrawling.
` + insightSuggestionContract
}

func verticalSetupTemplate(NamingParams) string {
	return `You are guiding the admin through creating a search vertical for this connection.

**Key Insight**: A vertical gives the content its own tab in Microsoft Search.
- Scope the vertical to this connection's content source.
- Enable it for the same audience as the connection rollout, or users will see an empty tab.
` + insightSuggestionContract
}

func testConnectionTemplate(NamingParams) string {
	return `You are guiding the admin through the connection test step.

**Failure triage, in order**:
1. URL unreachable -> verify the service URL and that the agent host can reach it.
2. 401/403 -> the credentials are wrong or lack read access.
3. Timeout -> source is up but slow; retry once before changing anything.

Report only the failure actually visible on screen; do not list all three if the test passed.
` + insightSuggestionContract
}

func errorRecoveryTemplate(NamingParams) string {
	return `An error banner is visible on the admin's current wizard step.

Read the error text from the page DOM, explain its most likely cause in one sentence, and give the single next corrective action. Do not restart the wizard or repeat earlier steps.
` + insightSuggestionContract
}

func completionSummaryTemplate(NamingParams) string {
	return `The connection has been created and published.

Summarize in three short bullets: when the first full crawl will finish, where results will appear (Search vertical / Copilot), and where to monitor crawl health (the connection's status page). Congratulate briefly; no further steps.
` + insightSuggestionContract
}

func suppressedFieldTemplate(NamingParams) string {
	// The chat handler short-circuits this phase and never calls the
	// completion backend; the template exists so the phase map stays total.
	return ""
}

func genericFieldTemplate(NamingParams) string {
	return fmt.Sprintf(`You are a real-time form filling assistant.
The user currently has their cursor inside a specific input field.

**Your Task**:
1. Explain what this specific field is for (Insight).
2. Provide a valid example value (Suggestion).
3. Mention any critical warnings.

**Output Format**:
**Insight**: [What is this field and any warnings]
**Suggestion**: %[1]s[Example Value]%[1]s`, fence)
}

// IsSuppressed reports whether the phase must produce an empty chat response
// without a round trip to the completion backend.
func IsSuppressed(p Phase) bool {
	return p == PhaseSuppressedField
}

// Messages flattens the bundle into role/content pairs in the order the
// completion backend expects: system prompt, context, then the user turn.
func (b InstructionBundle) Messages() []BundleMessage {
	return []BundleMessage{
		{Role: "system", Content: b.SystemPrompt},
		{Role: "system", Content: "[Context]\n" + b.ContextBlock},
		{Role: "user", Content: b.UserMessage},
	}
}

// BundleMessage is one role-tagged message of the flattened bundle.
type BundleMessage struct {
	Role    string
	Content string
}

// TruncateForLog returns a short prefix of s for structured log fields.
func TruncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max]) + "..."
}
