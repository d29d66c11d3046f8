// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/GraphCompanion/services/broker"
	"github.com/AleutianAI/GraphCompanion/services/companion/middleware"
	"github.com/AleutianAI/GraphCompanion/services/companion/session"
	"github.com/AleutianAI/GraphCompanion/services/companion/wizard"
	"github.com/AleutianAI/GraphCompanion/services/identity"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter() *gin.Engine {
	r := gin.New()
	r.Use(middleware.SessionMiddleware())
	return r
}

func doReq(t *testing.T, r *gin.Engine, method, path, sessionID, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if sessionID != "" {
		req.Header.Set(middleware.SessionHeader, sessionID)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed), "body: %s", w.Body.String())
	return w, parsed
}

// -----------------------------------------------------------------------------
// GET /
// -----------------------------------------------------------------------------

func TestHandleRoot(t *testing.T) {
	store := session.NewStore()
	r := newTestRouter()
	r.GET("/", HandleRoot(store))

	w, body := doReq(t, r, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, ServiceName, body["service"])
	assert.Equal(t, "unauthenticated", body["auth_status"])
	assert.Equal(t, "", body["session_id"])

	sess := store.GetOrCreate("s1")
	gen, _ := sess.BeginLogin()
	sess.Complete(gen, &identity.Credential{})

	_, body = doReq(t, r, http.MethodGet, "/", "s1", "")
	assert.Equal(t, "authenticated", body["auth_status"])
	assert.Equal(t, "s1", body["session_id"])

	_, body = doReq(t, r, http.MethodGet, "/", "unknown", "")
	assert.Equal(t, "unauthenticated", body["auth_status"])
}

// -----------------------------------------------------------------------------
// GET /auth/code
// -----------------------------------------------------------------------------

func TestHandleAuthCode_MissingSessionID(t *testing.T) {
	r := newTestRouter()
	r.GET("/auth/code", HandleAuthCode(session.NewStore()))

	w, body := doReq(t, r, http.MethodGet, "/auth/code", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "Missing session id", body["message"])
}

func TestHandleAuthCode_Lifecycle(t *testing.T) {
	store := session.NewStore()
	r := newTestRouter()
	r.GET("/auth/code", HandleAuthCode(store))

	// Unknown session polls as waiting, not as an error.
	_, body := doReq(t, r, http.MethodGet, "/auth/code", "s1", "")
	assert.Equal(t, "waiting", body["status"])
	assert.Equal(t, "Waiting for device code generation...", body["message"])

	sess := store.GetOrCreate("s1")
	gen, _ := sess.BeginLogin()

	// Flow running, no code yet.
	_, body = doReq(t, r, http.MethodGet, "/auth/code", "s1", "")
	assert.Equal(t, "waiting", body["status"])

	expires := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	sess.SetDeviceCode(gen, session.DeviceCode{
		VerificationURI: "https://microsoft.com/devicelogin",
		UserCode:        "ABCD-1234",
		ExpiresOn:       expires,
		Message:         "Please sign in to authenticate.",
	})

	_, body = doReq(t, r, http.MethodGet, "/auth/code", "s1", "")
	assert.Equal(t, "present", body["status"])
	assert.Equal(t, "https://microsoft.com/devicelogin", body["verification_uri"])
	assert.Equal(t, "ABCD-1234", body["user_code"])
	assert.Equal(t, "2025-09-01T12:00:00Z", body["expires_on"])
	assert.Equal(t, "Please sign in to authenticate.", body["message"])

	sess.Complete(gen, &identity.Credential{})
	_, body = doReq(t, r, http.MethodGet, "/auth/code", "s1", "")
	assert.Equal(t, "authenticated", body["status"])
	assert.NotContains(t, body, "user_code")
}

func TestHandleAuthCode_Failed(t *testing.T) {
	store := session.NewStore()
	r := newTestRouter()
	r.GET("/auth/code", HandleAuthCode(store))

	sess := store.GetOrCreate("s1")
	gen, _ := sess.BeginLogin()
	sess.Fail(gen, "authorization_declined")

	_, body := doReq(t, r, http.MethodGet, "/auth/code", "s1", "")
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "authorization_declined", body["detail"])
}

// -----------------------------------------------------------------------------
// GET /me
// -----------------------------------------------------------------------------

type fakeProfileSource struct {
	profile *identity.Profile
	err     error
}

func (f *fakeProfileSource) Profile(ctx context.Context) (*identity.Profile, error) {
	return f.profile, f.err
}

func TestHandleMe_Unauthenticated(t *testing.T) {
	store := session.NewStore()
	r := newTestRouter()
	r.GET("/me", HandleMe(store))

	w, body := doReq(t, r, http.MethodGet, "/me", "s1", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Not authenticated yet.", body["detail"])

	// Flow in progress still reads as unauthenticated.
	sess := store.GetOrCreate("s1")
	gen, _ := sess.BeginLogin()
	w, _ = doReq(t, r, http.MethodGet, "/me", "s1", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// So does a failed flow.
	require.True(t, sess.Fail(gen, "device flow timed out"))
	w, body = doReq(t, r, http.MethodGet, "/me", "s1", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Not authenticated yet.", body["detail"])
}

func TestHandleMe_ReturnsProfile(t *testing.T) {
	store := session.NewStore()
	r := newTestRouter()
	r.GET("/me", HandleMe(store))

	sess := store.GetOrCreate("s1")
	gen, _ := sess.BeginLogin()
	sess.Complete(gen, &fakeProfileSource{profile: &identity.Profile{
		DisplayName: "Avery Admin",
		Mail:        "avery@contoso.com",
		ID:          "user-123",
	}})

	w, body := doReq(t, r, http.MethodGet, "/me", "s1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Avery Admin", body["displayName"])
	assert.Equal(t, "avery@contoso.com", body["mail"])
	assert.Equal(t, "user-123", body["id"])
}

func TestHandleMe_GraphError(t *testing.T) {
	store := session.NewStore()
	r := newTestRouter()
	r.GET("/me", HandleMe(store))

	sess := store.GetOrCreate("s1")
	gen, _ := sess.BeginLogin()
	sess.Complete(gen, &fakeProfileSource{err: errors.New("token expired")})

	w, body := doReq(t, r, http.MethodGet, "/me", "s1", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "token expired", body["detail"])
}

// -----------------------------------------------------------------------------
// POST /agent/chat
// -----------------------------------------------------------------------------

type fakeBroker struct {
	answer string
	err    error

	gotBundle *wizard.InstructionBundle
}

func (f *fakeBroker) Generate(ctx context.Context, bundle wizard.InstructionBundle, params broker.GenerationParams) (string, error) {
	f.gotBundle = &bundle
	return f.answer, f.err
}

func chatRouter(client broker.CompletionClient) *gin.Engine {
	r := newTestRouter()
	r.POST("/agent/chat", HandleAgentChat(wizard.NewClassifier(), wizard.NewSelector(), client))
	return r
}

func TestHandleAgentChat_InvalidBody(t *testing.T) {
	r := chatRouter(&fakeBroker{})

	w, _ := doReq(t, r, http.MethodPost, "/agent/chat", "s1", `{"message":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doReq(t, r, http.MethodPost, "/agent/chat", "s1", `{"context_url":"https://x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "empty message is rejected")
}

func TestHandleAgentChat_NotConfigured(t *testing.T) {
	r := chatRouter(nil)

	w, body := doReq(t, r, http.MethodPost, "/agent/chat", "s1", `{"message":"hello"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body["response"], "Azure OpenAI is not configured")
}

func TestHandleAgentChat_SuppressedPhaseSkipsBackend(t *testing.T) {
	fb := &fakeBroker{answer: "should not be used"}
	r := chatRouter(fb)

	_, body := doReq(t, r, http.MethodPost, "/agent/chat", "s1",
		`{"message":"typed into the search box"}`)
	assert.Equal(t, "", body["response"])
	assert.Nil(t, fb.gotBundle, "suppressed phases never reach the backend")
}

func TestHandleAgentChat_RendersBundleThroughBackend(t *testing.T) {
	fb := &fakeBroker{answer: "Here is what to do next."}
	r := chatRouter(fb)

	w, body := doReq(t, r, http.MethodPost, "/agent/chat", "s1",
		`{"message":"help me with the name field for Connector context: 'Jira Cloud'","context_url":"https://admin.microsoft.com","dom_snippet":"<input name>"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Here is what to do next.", body["response"])

	require.NotNil(t, fb.gotBundle)
	assert.NotEmpty(t, fb.gotBundle.SystemPrompt)
	assert.Contains(t, fb.gotBundle.ContextBlock, "https://admin.microsoft.com")
	assert.Contains(t, fb.gotBundle.ContextBlock, "<input name>")
}

func TestHandleAgentChat_BackendErrorInlined(t *testing.T) {
	fb := &fakeBroker{err: errors.New("deployment not found")}
	r := chatRouter(fb)

	w, body := doReq(t, r, http.MethodPost, "/agent/chat", "s1", `{"message":"hello"}`)
	assert.Equal(t, http.StatusOK, w.Code, "backend errors are inlined, not HTTP errors")
	resp, _ := body["response"].(string)
	assert.Contains(t, resp, "AI Error")
	assert.Contains(t, resp, "deployment not found")
}

// -----------------------------------------------------------------------------
// POST /tools/open-powershell
// -----------------------------------------------------------------------------

func TestHandleOpenPowerShell(t *testing.T) {
	orig := launchPowerShell
	t.Cleanup(func() { launchPowerShell = orig })

	r := newTestRouter()
	r.POST("/tools/open-powershell", HandleOpenPowerShell())

	launchPowerShell = func() error { return nil }
	w, body := doReq(t, r, http.MethodPost, "/tools/open-powershell", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "PowerShell launched", body["message"])

	launchPowerShell = func() error { return errors.New("exec: not found") }
	w, body = doReq(t, r, http.MethodPost, "/tools/open-powershell", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["message"], "not found")
}
