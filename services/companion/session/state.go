// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session holds per-extension-session state and the concurrency-safe
// store that owns it.
//
// One Session exists per browser-extension client, keyed by the opaque id the
// extension supplies on every call. The auth flow controller is the sole
// writer of a session's auth fields; HTTP handlers read them through
// Snapshot, which copies all fields under one lock acquisition so a reader
// can never observe a device code paired with a stale status.
//
// Sessions are never evicted. Process-lifetime retention is a documented
// limitation of the service, not something this package compensates for.
package session

import (
	"sync"
	"time"
)

// AuthStatus is the session's position in the device-code sign-in state
// machine. Transitions are monotonic except Unauthenticated->CodePending and
// any->Failed; a session never regresses from Authenticated.
type AuthStatus string

const (
	// StatusUnauthenticated is the initial state before any login request.
	StatusUnauthenticated AuthStatus = "unauthenticated"

	// StatusCodePending means a background flow is running; a device code
	// may or may not have been captured yet.
	StatusCodePending AuthStatus = "code_pending"

	// StatusAuthenticated is terminal success.
	StatusAuthenticated AuthStatus = "authenticated"

	// StatusFailed is terminal until the next login request resets the
	// session to CodePending.
	StatusFailed AuthStatus = "failed"
)

// DeviceCode is the human-presentable half of a device-code flow: the code
// and URL the admin completes sign-in with on another surface. ExpiresOn is
// whatever the identity provider reported; it is surfaced to the caller,
// never enforced here.
type DeviceCode struct {
	VerificationURI string
	UserCode        string
	ExpiresOn       time.Time
	Message         string
}

// Snapshot is an atomic copy of a session's auth fields. DeviceCode is nil
// unless the status is CodePending and the code has been captured.
type Snapshot struct {
	Status     AuthStatus
	DeviceCode *DeviceCode
	LastError  string
}

// Session is the state for one extension client. All fields behind mu are
// written only by the owning auth flow (via the generation-checked setters)
// and by BeginLogin's reset.
type Session struct {
	// ID is the caller-supplied opaque key. Immutable.
	ID string

	mu         sync.Mutex
	status     AuthStatus
	deviceCode *DeviceCode
	lastError  string

	// credential is the opaque handle produced by a completed flow.
	// Retained across a later Failed transition only by a new successful
	// flow overwriting it.
	credential any

	// generation counts login attempts. A background flow records the
	// generation it was started under; writes from a superseded flow
	// (stale generation) are dropped.
	generation uint64
}

func newSession(id string) *Session {
	return &Session{
		ID:     id,
		status: StatusUnauthenticated,
	}
}

// Snapshot returns an atomic copy of the auth fields. Safe to call at any
// polling frequency; never blocks on anything but the session mutex.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Status:    s.status,
		LastError: s.lastError,
	}
	if s.deviceCode != nil {
		dc := *s.deviceCode
		snap.DeviceCode = &dc
	}
	return snap
}

// BeginLogin prepares the session for a new device-code flow.
//
// If the session is already Authenticated it is left untouched and
// alreadyAuthed is true. Otherwise the device code and last error are
// cleared, the status moves to CodePending, and the returned generation
// identifies the flow about to start. The state reset happens-before the
// caller launches the background flow, satisfying the ordering contract that
// no flow writes into a session that is not yet CodePending.
//
// Calling BeginLogin while a flow is in progress supersedes it: the old
// flow's generation goes stale and its subsequent writes are dropped.
func (s *Session) BeginLogin() (generation uint64, alreadyAuthed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusAuthenticated {
		return s.generation, true
	}

	s.generation++
	s.status = StatusCodePending
	s.deviceCode = nil
	s.lastError = ""
	return s.generation, false
}

// SetDeviceCode records the captured device code for the flow identified by
// generation. Returns false (no-op) if that flow has been superseded.
func (s *Session) SetDeviceCode(generation uint64, dc DeviceCode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation || s.status != StatusCodePending {
		return false
	}
	s.deviceCode = &dc
	return true
}

// Complete marks the flow identified by generation as successfully finished,
// storing the credential handle and clearing the device code. Returns false
// if the flow was superseded.
func (s *Session) Complete(generation uint64, credential any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		return false
	}
	s.status = StatusAuthenticated
	s.deviceCode = nil
	s.lastError = ""
	s.credential = credential
	return true
}

// Fail marks the flow identified by generation as failed. Returns false if
// the flow was superseded. A session that already reached Authenticated via
// a newer flow is never regressed.
func (s *Session) Fail(generation uint64, message string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation || s.status == StatusAuthenticated {
		return false
	}
	s.status = StatusFailed
	s.deviceCode = nil
	s.lastError = message
	return true
}

// Credential returns the opaque credential handle, or nil before a flow has
// completed successfully.
func (s *Session) Credential() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential
}
