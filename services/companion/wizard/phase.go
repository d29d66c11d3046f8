// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package wizard turns a chat message plus page-content snapshot into exactly
// one instruction bundle for the completion backend.
//
// The package has two halves:
//
//   - Classifier: resolves a ClassificationInput to a single Phase using an
//     ordered rule table. Machine-asserted signals (action tokens, phase
//     continuation markers) outrank free-text keyword matches, which outrank
//     URL heuristics. PhaseGenericField is the total-function fallback.
//   - Selector: maps the resolved Phase to a canned instruction template.
//     Values the classifier computed deterministically (naming suggestions,
//     tool identity) are embedded into the template verbatim so the
//     completion backend cannot alter them.
//
// Both halves are pure: no I/O, no hidden state, same input same output.
package wizard

// Phase identifies one step of the connector installation and configuration
// guide. The set is closed; every Phase has a template in the Selector.
type Phase string

const (
	// PhaseWelcomeIntro orients the admin on the connector creation landing page.
	PhaseWelcomeIntro Phase = "welcome_intro"

	// PhaseConnectorGallery guides selection from the connector gallery.
	PhaseConnectorGallery Phase = "connector_gallery"

	// PhaseNamingField covers the connection Display Name input. Carries
	// deterministic naming params (tool identity, suggested name).
	PhaseNamingField Phase = "naming_field"

	// PhaseConnectionIDField covers the Connection ID input.
	PhaseConnectionIDField Phase = "connection_id_field"

	// PhaseDescriptionField covers the connection Description input.
	PhaseDescriptionField Phase = "description_field"

	// PhaseServiceURLField covers the data source service URL input.
	PhaseServiceURLField Phase = "service_url_field"

	// PhaseAuthTypeField covers the authentication type selector.
	PhaseAuthTypeField Phase = "auth_type_field"

	// PhaseOAuthClientIDField covers the OAuth client id input.
	PhaseOAuthClientIDField Phase = "oauth_client_id_field"

	// PhaseOAuthClientSecretField covers the OAuth client secret input.
	PhaseOAuthClientSecretField Phase = "oauth_client_secret_field"

	// PhaseJiraOAuthGuide walks through creating an OAuth app in Jira.
	PhaseJiraOAuthGuide Phase = "jira_oauth_guide"

	// PhaseJiraPATGuide walks through creating a Jira personal access token.
	PhaseJiraPATGuide Phase = "jira_pat_guide"

	// PhaseAgentDropdownField covers the on-premises agent dropdown,
	// including the empty-dropdown install path.
	PhaseAgentDropdownField Phase = "agent_dropdown_field"

	// PhaseAgentInstallPhase1 through PhaseAgentInstallPhase4 are the four
	// scripted steps of the on-premises agent installation walkthrough.
	PhaseAgentInstallPhase1 Phase = "agent_install_phase_1"
	PhaseAgentInstallPhase2 Phase = "agent_install_phase_2"
	PhaseAgentInstallPhase3 Phase = "agent_install_phase_3"
	PhaseAgentInstallPhase4 Phase = "agent_install_phase_4"

	// PhaseAgentHealthCheck verifies the installed agent is registered and
	// reporting healthy.
	PhaseAgentHealthCheck Phase = "agent_health_check"

	// PhaseRolloutField covers the rollout / audience selection step.
	PhaseRolloutField Phase = "rollout_field"

	// PhasePropertySchemaGuide covers the property-to-schema mapping table.
	PhasePropertySchemaGuide Phase = "property_schema_guide"

	// PhasePreviewDataGuide covers the data preview step.
	PhasePreviewDataGuide Phase = "preview_data_guide"

	// PhaseCrawlScheduleField covers the full crawl schedule selector.
	PhaseCrawlScheduleField Phase = "crawl_schedule_field"

	// PhaseIncrementalCrawlField covers the incremental crawl selector.
	PhaseIncrementalCrawlField Phase = "incremental_crawl_field"

	// PhaseIdentityMappingField covers the identity mapping step.
	PhaseIdentityMappingField Phase = "identity_mapping_field"

	// PhaseResultTypeGuide covers search result type creation.
	PhaseResultTypeGuide Phase = "result_type_guide"

	// PhaseVerticalSetupGuide covers search vertical creation.
	PhaseVerticalSetupGuide Phase = "vertical_setup_guide"

	// PhaseTestConnectionGuide covers the connection test step and its
	// common failure modes.
	PhaseTestConnectionGuide Phase = "test_connection_guide"

	// PhaseErrorRecoveryGuide handles a visible error banner on any step.
	PhaseErrorRecoveryGuide Phase = "error_recovery_guide"

	// PhaseCompletionSummary wraps up after the connection is published.
	PhaseCompletionSummary Phase = "completion_summary"

	// PhaseSuppressedField marks inputs the assistant deliberately stays
	// silent on (search boxes, the Jira URL field). The chat handler
	// returns an empty response without calling the completion backend.
	PhaseSuppressedField Phase = "suppressed_field"

	// PhaseGenericField is the fallback for any unrecognized input,
	// guaranteeing classification is total.
	PhaseGenericField Phase = "generic_field"
)

// AllPhases lists every phase in the closed set. Used by the exhaustiveness
// test that proves the Selector maps each phase to a template.
func AllPhases() []Phase {
	return []Phase{
		PhaseWelcomeIntro,
		PhaseConnectorGallery,
		PhaseNamingField,
		PhaseConnectionIDField,
		PhaseDescriptionField,
		PhaseServiceURLField,
		PhaseAuthTypeField,
		PhaseOAuthClientIDField,
		PhaseOAuthClientSecretField,
		PhaseJiraOAuthGuide,
		PhaseJiraPATGuide,
		PhaseAgentDropdownField,
		PhaseAgentInstallPhase1,
		PhaseAgentInstallPhase2,
		PhaseAgentInstallPhase3,
		PhaseAgentInstallPhase4,
		PhaseAgentHealthCheck,
		PhaseRolloutField,
		PhasePropertySchemaGuide,
		PhasePreviewDataGuide,
		PhaseCrawlScheduleField,
		PhaseIncrementalCrawlField,
		PhaseIdentityMappingField,
		PhaseResultTypeGuide,
		PhaseVerticalSetupGuide,
		PhaseTestConnectionGuide,
		PhaseErrorRecoveryGuide,
		PhaseCompletionSummary,
		PhaseSuppressedField,
		PhaseGenericField,
	}
}
