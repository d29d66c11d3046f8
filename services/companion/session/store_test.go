// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetOrCreateIdempotent(t *testing.T) {
	store := NewStore()

	first := store.GetOrCreate("sess-1")
	require.NotNil(t, first)
	assert.Equal(t, StatusUnauthenticated, first.Snapshot().Status)

	// Mutate, then fetch again: same session, not a fresh reset.
	gen, already := first.BeginLogin()
	require.False(t, already)
	first.SetDeviceCode(gen, DeviceCode{UserCode: "ABC123"})

	second := store.GetOrCreate("sess-1")
	assert.Same(t, first, second)
	snap := second.Snapshot()
	assert.Equal(t, StatusCodePending, snap.Status)
	require.NotNil(t, snap.DeviceCode)
	assert.Equal(t, "ABC123", snap.DeviceCode.UserCode)
}

func TestStore_GetDoesNotCreate(t *testing.T) {
	store := NewStore()

	_, ok := store.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())

	store.GetOrCreate("present")
	got, ok := store.Get("present")
	assert.True(t, ok)
	assert.Equal(t, "present", got.ID)
	assert.Equal(t, 1, store.Len())
}

func TestStore_ConcurrentGetOrCreate(t *testing.T) {
	store := NewStore()

	const goroutines = 64
	results := make([]*Session, goroutines)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = store.GetOrCreate("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Same(t, results[0], results[i], "goroutine %d got a different session", i)
	}
	assert.Equal(t, 1, store.Len())
}

func TestStore_IndependentSessions(t *testing.T) {
	store := NewStore()
	for i := 0; i < 100; i++ {
		store.GetOrCreate(fmt.Sprintf("sess-%d", i))
	}
	assert.Equal(t, 100, store.Len())

	gen, _ := store.GetOrCreate("sess-7").BeginLogin()
	store.GetOrCreate("sess-7").SetDeviceCode(gen, DeviceCode{UserCode: "X"})

	other, _ := store.Get("sess-8")
	assert.Equal(t, StatusUnauthenticated, other.Snapshot().Status)
}

func TestSession_SnapshotIsAtomicCopy(t *testing.T) {
	s := newSession("sess")
	gen, _ := s.BeginLogin()
	s.SetDeviceCode(gen, DeviceCode{
		VerificationURI: "https://microsoft.com/devicelogin",
		UserCode:        "CODE1",
		ExpiresOn:       time.Now().Add(15 * time.Minute),
	})

	snap := s.Snapshot()
	require.NotNil(t, snap.DeviceCode)

	// Mutating the snapshot's copy must not leak back into the session.
	snap.DeviceCode.UserCode = "TAMPERED"
	assert.Equal(t, "CODE1", s.Snapshot().DeviceCode.UserCode)
}

func TestSession_LifecycleTransitions(t *testing.T) {
	s := newSession("sess")

	gen, already := s.BeginLogin()
	require.False(t, already)
	assert.Equal(t, StatusCodePending, s.Snapshot().Status)

	require.True(t, s.SetDeviceCode(gen, DeviceCode{UserCode: "CODE"}))
	require.True(t, s.Complete(gen, "token-handle"))

	snap := s.Snapshot()
	assert.Equal(t, StatusAuthenticated, snap.Status)
	assert.Nil(t, snap.DeviceCode, "device code must be cleared on success")
	assert.Equal(t, "token-handle", s.Credential())

	// Authenticated is terminal for BeginLogin.
	_, already = s.BeginLogin()
	assert.True(t, already)
	assert.Equal(t, StatusAuthenticated, s.Snapshot().Status)
}

func TestSession_FailureAndRetry(t *testing.T) {
	s := newSession("sess")

	gen, _ := s.BeginLogin()
	require.True(t, s.Fail(gen, "device flow timed out"))

	snap := s.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "device flow timed out", snap.LastError)
	assert.Nil(t, snap.DeviceCode)

	// A new login resets Failed back to CodePending and clears the error.
	gen2, already := s.BeginLogin()
	require.False(t, already)
	assert.Greater(t, gen2, gen)
	snap = s.Snapshot()
	assert.Equal(t, StatusCodePending, snap.Status)
	assert.Empty(t, snap.LastError)
}

func TestSession_StaleGenerationWritesDropped(t *testing.T) {
	s := newSession("sess")

	oldGen, _ := s.BeginLogin()
	newGen, _ := s.BeginLogin() // supersedes the first flow
	require.Greater(t, newGen, oldGen)

	assert.False(t, s.SetDeviceCode(oldGen, DeviceCode{UserCode: "STALE"}))
	assert.Nil(t, s.Snapshot().DeviceCode)

	assert.False(t, s.Fail(oldGen, "stale failure"))
	assert.Equal(t, StatusCodePending, s.Snapshot().Status)

	assert.False(t, s.Complete(oldGen, "stale-cred"))
	assert.Nil(t, s.Credential())

	// The live flow still works.
	assert.True(t, s.SetDeviceCode(newGen, DeviceCode{UserCode: "LIVE"}))
	assert.True(t, s.Complete(newGen, "live-cred"))
	assert.Equal(t, "live-cred", s.Credential())
}

func TestSession_FailNeverRegressesAuthenticated(t *testing.T) {
	s := newSession("sess")
	gen, _ := s.BeginLogin()
	require.True(t, s.Complete(gen, "cred"))

	assert.False(t, s.Fail(gen, "late network error"))
	assert.Equal(t, StatusAuthenticated, s.Snapshot().Status)
}
