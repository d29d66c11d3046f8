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
	"hash/fnv"
	"sync"
)

// shardCount is the fixed number of store shards. Sessions are independent,
// so sharding only exists to keep unrelated sessions from contending on one
// lock; 32 is plenty for a single-admin companion service.
const shardCount = 32

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// Store is the concurrency-safe mapping from session id to Session.
//
// The store only ever grows: sessions are retained for the life of the
// process. That is a deliberate limitation carried from the product design
// (one admin, short-lived process), not an oversight.
type Store struct {
	shards [shardCount]*shard
}

// NewStore returns an empty Store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%shardCount]
}

// GetOrCreate returns the session for id, creating it in the
// Unauthenticated state if it does not exist. Idempotent: two calls with the
// same id always return the same *Session, never a fresh reset.
func (s *Store) GetOrCreate(id string) *Session {
	sh := s.shardFor(id)

	sh.mu.RLock()
	sess, ok := sh.sessions[id]
	sh.mu.RUnlock()
	if ok {
		return sess
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	// Re-check: another request may have created it between the locks.
	if sess, ok := sh.sessions[id]; ok {
		return sess
	}
	sess = newSession(id)
	sh.sessions[id] = sess
	return sess
}

// Get returns the session for id without creating one.
func (s *Store) Get(id string) (*Session, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	sess, ok := sh.sessions[id]
	return sess, ok
}

// Len reports the total number of live sessions, for the status endpoint
// and metrics.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}
