// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package authflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/GraphCompanion/services/companion/session"
	"github.com/AleutianAI/GraphCompanion/services/identity"
)

// fakeGateway scripts one Acquire call per queued step. Each step may emit a
// prompt, optionally block until released, then return its result.
type fakeGateway struct {
	mu    sync.Mutex
	steps []fakeStep
}

type fakeStep struct {
	prompt  *identity.DeviceCodePrompt
	block   chan struct{} // recv before returning; nil means return immediately
	cred    *identity.Credential
	err     error
	started chan struct{} // closed once Acquire begins this step
}

func (g *fakeGateway) push(step fakeStep) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.steps = append(g.steps, step)
}

func (g *fakeGateway) Acquire(ctx context.Context, prompt func(identity.DeviceCodePrompt)) (*identity.Credential, error) {
	g.mu.Lock()
	if len(g.steps) == 0 {
		g.mu.Unlock()
		return nil, errors.New("fakeGateway: no scripted step")
	}
	step := g.steps[0]
	g.steps = g.steps[1:]
	g.mu.Unlock()

	if step.started != nil {
		close(step.started)
	}
	if step.prompt != nil {
		prompt(*step.prompt)
	}
	if step.block != nil {
		select {
		case <-step.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return step.cred, step.err
}

func waitForStatus(t *testing.T, sess *session.Session, want session.AuthStatus) session.Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return sess.Snapshot().Status == want
	}, 2*time.Second, 5*time.Millisecond, "session never reached %s", want)
	return sess.Snapshot()
}

func testPrompt() *identity.DeviceCodePrompt {
	return &identity.DeviceCodePrompt{
		VerificationURI: "https://microsoft.com/devicelogin",
		UserCode:        "ABCD-1234",
		ExpiresOn:       time.Now().Add(15 * time.Minute),
		Message:         "Please sign in to authenticate.",
	}
}

func TestStartLogin_SuccessPublishesCodeThenCredential(t *testing.T) {
	store := session.NewStore()
	gw := &fakeGateway{}
	ctrl := NewController(store, gw, nil)

	cred := &identity.Credential{}
	release := make(chan struct{})
	gw.push(fakeStep{prompt: testPrompt(), block: release, cred: cred})

	res := ctrl.StartLogin("sess-1")
	assert.False(t, res.AlreadyAuthenticated)

	sess, ok := store.Get("sess-1")
	require.True(t, ok, "StartLogin must create the session")

	// Device code visible while the flow is still blocked on the provider.
	require.Eventually(t, func() bool {
		snap := sess.Snapshot()
		return snap.Status == session.StatusCodePending && snap.DeviceCode != nil
	}, 2*time.Second, 5*time.Millisecond)
	snap := sess.Snapshot()
	assert.Equal(t, "ABCD-1234", snap.DeviceCode.UserCode)
	assert.Equal(t, "https://microsoft.com/devicelogin", snap.DeviceCode.VerificationURI)

	close(release)
	snap = waitForStatus(t, sess, session.StatusAuthenticated)
	assert.Nil(t, snap.DeviceCode, "device code cleared on completion")
	assert.Same(t, cred, sess.Credential().(*identity.Credential))
}

func TestStartLogin_FailureRecordsError(t *testing.T) {
	store := session.NewStore()
	gw := &fakeGateway{}
	ctrl := NewController(store, gw, nil)

	gw.push(fakeStep{prompt: testPrompt(), err: errors.New("authorization_declined")})

	ctrl.StartLogin("sess-2")
	sess, _ := store.Get("sess-2")

	snap := waitForStatus(t, sess, session.StatusFailed)
	assert.Equal(t, "authorization_declined", snap.LastError)
	assert.Nil(t, snap.DeviceCode)
	assert.Nil(t, sess.Credential())
}

func TestStartLogin_AlreadyAuthenticatedShortCircuits(t *testing.T) {
	store := session.NewStore()
	gw := &fakeGateway{}
	ctrl := NewController(store, gw, nil)

	gw.push(fakeStep{cred: &identity.Credential{}})
	ctrl.StartLogin("sess-3")
	sess, _ := store.Get("sess-3")
	waitForStatus(t, sess, session.StatusAuthenticated)

	// No step queued: a second flow would fail. Short-circuit means the
	// gateway is never called again.
	res := ctrl.StartLogin("sess-3")
	assert.True(t, res.AlreadyAuthenticated)
	assert.Equal(t, session.StatusAuthenticated, sess.Snapshot().Status)
}

func TestStartLogin_SupersededFlowWritesDropped(t *testing.T) {
	store := session.NewStore()
	gw := &fakeGateway{}
	ctrl := NewController(store, gw, nil)

	staleCred := &identity.Credential{}
	freshCred := &identity.Credential{}

	firstStarted := make(chan struct{})
	firstRelease := make(chan struct{})
	gw.push(fakeStep{prompt: testPrompt(), block: firstRelease, cred: staleCred, started: firstStarted})

	ctrl.StartLogin("sess-4")
	<-firstStarted

	secondRelease := make(chan struct{})
	gw.push(fakeStep{
		prompt: &identity.DeviceCodePrompt{
			VerificationURI: "https://microsoft.com/devicelogin",
			UserCode:        "WXYZ-9999",
			ExpiresOn:       time.Now().Add(15 * time.Minute),
		},
		block: secondRelease,
		cred:  freshCred,
	})
	ctrl.StartLogin("sess-4")

	sess, _ := store.Get("sess-4")
	require.Eventually(t, func() bool {
		snap := sess.Snapshot()
		return snap.DeviceCode != nil && snap.DeviceCode.UserCode == "WXYZ-9999"
	}, 2*time.Second, 5*time.Millisecond, "second flow's code must win")

	// First flow finishes after being superseded; its credential is dropped.
	close(firstRelease)
	time.Sleep(50 * time.Millisecond)
	snap := sess.Snapshot()
	assert.Equal(t, session.StatusCodePending, snap.Status)
	require.NotNil(t, snap.DeviceCode)
	assert.Equal(t, "WXYZ-9999", snap.DeviceCode.UserCode)

	close(secondRelease)
	waitForStatus(t, sess, session.StatusAuthenticated)
	assert.Same(t, freshCred, sess.Credential().(*identity.Credential))
}

func TestStartLogin_RetryAfterFailure(t *testing.T) {
	store := session.NewStore()
	gw := &fakeGateway{}
	ctrl := NewController(store, gw, nil)

	gw.push(fakeStep{err: errors.New("expired_token")})
	ctrl.StartLogin("sess-5")
	sess, _ := store.Get("sess-5")
	waitForStatus(t, sess, session.StatusFailed)

	gw.push(fakeStep{prompt: testPrompt(), cred: &identity.Credential{}})
	ctrl.StartLogin("sess-5")
	snap := waitForStatus(t, sess, session.StatusAuthenticated)
	assert.Empty(t, snap.LastError, "error cleared by successful retry")
}
