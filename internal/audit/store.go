// Sentinel - In-Process Threat Detection and Response
// Copyright 2026 ClipDeck Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/clipdeck/sentinel

package audit

import (
	"context"
	"sync"
)

// MemoryStore implements Store with capped in-memory storage. When the
// cap is reached the oldest tenth is discarded, keeping appends O(1)
// amortized. Suitable for development and as the in-process buffer in
// front of the external relational collaborator.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	maxLen  int
}

// NewMemoryStore creates an in-memory audit store.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{
		entries: make([]Entry, 0, maxLen),
		maxLen:  maxLen,
	}
}

// Save persists one entry.
func (s *MemoryStore) Save(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= s.maxLen {
		removeCount := s.maxLen / 10
		if removeCount < 1 {
			removeCount = 1
		}
		s.entries = s.entries[removeCount:]
	}
	s.entries = append(s.entries, *entry)
	return nil
}

// Query retrieves entries matching the filter, newest first.
func (s *MemoryStore) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var results []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		entry := s.entries[i]
		if !matches(&entry, &filter) {
			continue
		}
		results = append(results, entry)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// Count returns the number of entries matching the filter.
func (s *MemoryStore) Count(ctx context.Context, filter Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for i := range s.entries {
		if matches(&s.entries[i], &filter) {
			count++
		}
	}
	return count, nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// matches reports whether the entry satisfies every filter criterion.
func matches(entry *Entry, filter *Filter) bool {
	if filter.Action != "" && entry.Action != filter.Action {
		return false
	}
	if filter.UserID != "" && entry.UserID != filter.UserID {
		return false
	}
	if filter.ResourceType != "" && entry.ResourceType != filter.ResourceType {
		return false
	}
	if filter.StartTime != nil && entry.CreatedAt.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && entry.CreatedAt.After(*filter.EndTime) {
		return false
	}
	return true
}
