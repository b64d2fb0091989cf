// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package trigger matches guild messages against stored regex triggers and
// dispatches the first hit.
//
// Patterns are Go regexp (RE2) syntax, compiled case-insensitively. RE2 has
// no backtracking, so a hostile pattern cannot stall the matcher; the only
// extra guard needed is a length cap at creation time. Compiled patterns are
// kept in a bounded LRU cache shared across guilds.
package trigger

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/voltcord/voltcord/pkg/logging"
	"github.com/voltcord/voltcord/services/core/dispatch"
	"github.com/voltcord/voltcord/services/core/domain"
	"github.com/voltcord/voltcord/services/core/observability"
	"github.com/voltcord/voltcord/services/core/pipeline"
	"github.com/voltcord/voltcord/services/core/store"
)

// MaxPatternLength bounds trigger pattern sources.
const MaxPatternLength = 512

// patternCacheSize bounds the compiled-pattern LRU cache.
const patternCacheSize = 1000

// ValidatePattern checks a trigger pattern at creation time: non-empty,
// within the length cap, and compilable. Returns the compiled pattern or a
// rejection with kind invalid_pattern.
func ValidatePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, domain.NewRejection(domain.RejectInvalidPattern, "pattern must not be empty")
	}
	if len(pattern) > MaxPatternLength {
		return nil, domain.NewRejection(domain.RejectInvalidPattern,
			fmt.Sprintf("pattern exceeds %d characters", MaxPatternLength))
	}
	compiled, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, domain.WrapRejection(domain.RejectInvalidPattern, "pattern does not compile", err)
	}
	return compiled, nil
}

// Matcher evaluates messages against the owner's triggers.
//
// Thread Safety: Safe for concurrent use.
type Matcher struct {
	store      *store.Store
	dispatcher *dispatch.Dispatcher
	metrics    *observability.Metrics
	logger     *logging.Logger

	// now is swappable for tests.
	now func() time.Time

	cache *patternCache
}

// NewMatcher creates a matcher. Metrics and logger may be nil.
func NewMatcher(st *store.Store, dispatcher *dispatch.Dispatcher, metrics *observability.Metrics, logger *logging.Logger) *Matcher {
	if logger == nil {
		logger = logging.Default()
	}
	if metrics == nil {
		metrics = observability.NewTestMetrics()
	}
	return &Matcher{
		store:      st,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		cache:      newPatternCache(patternCacheSize),
	}
}

// OnMessage evaluates one message from author against author's enabled
// triggers in creation order and fires the first match whose cooldown has
// elapsed. Later matches on the same message are ignored.
//
// LastFiredAt advances on every fire attempt, before the dispatch outcome is
// known, so a failing downstream cannot turn one message into a burst.
// Returns the fired trigger, or nil when nothing fired.
func (m *Matcher) OnMessage(ctx context.Context, guild, author, content string) (*domain.Trigger, error) {
	triggers, err := m.store.ListTriggersByOwner(ctx, guild, author)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	if len(triggers) == 0 {
		return nil, nil
	}

	now := m.now()
	for i := range triggers {
		t := triggers[i]
		compiled, err := m.compile(t.Pattern)
		if err != nil {
			// A stored pattern that no longer compiles is a data bug;
			// skip it rather than silence the rest.
			m.logger.Error("stored trigger pattern does not compile",
				"guild", guild, "trigger", t.ID, "error", err.Error())
			continue
		}
		if !compiled.MatchString(content) {
			continue
		}

		if !t.Ready(now) {
			m.metrics.TriggersFiredTotal.WithLabelValues("cooldown").Inc()
			return nil, nil
		}

		if err := m.store.MarkTriggerFired(ctx, guild, t.ID, now); err != nil {
			if errors.Is(err, store.ErrClaimed) {
				// A concurrent message won the stamp; its fire covers this
				// one, same as an in-cooldown match.
				m.metrics.TriggersFiredTotal.WithLabelValues("cooldown").Inc()
				return nil, nil
			}
			return nil, fmt.Errorf("mark trigger fired: %w", err)
		}

		m.fire(ctx, t)
		m.metrics.TriggersFiredTotal.WithLabelValues("fired").Inc()
		return &t, nil
	}

	m.metrics.TriggersFiredTotal.WithLabelValues("no_match").Inc()
	return nil, nil
}

// fire dispatches a matched trigger. Failures are logged; the message path
// never errors out because a downstream call failed.
func (m *Matcher) fire(ctx context.Context, t domain.Trigger) {
	req := pipeline.Request{
		Guild:     t.Guild,
		Requester: t.Owner,
		Target:    t.Target,
		Source:    domain.SourceTrigger,
		Params:    domain.Explicit(t.Params),
	}

	name := "Trigger"
	if t.Name != "" {
		name = "Trigger: " + t.Name
	}

	if err := m.dispatcher.Dispatch(ctx, req, name); err != nil {
		m.logger.Warn("trigger dispatch failed",
			"guild", t.Guild,
			"trigger", t.ID,
			"error", err.Error())
	}
}

func (m *Matcher) compile(pattern string) (*regexp.Regexp, error) {
	if compiled := m.cache.get(pattern); compiled != nil {
		return compiled, nil
	}
	compiled, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	m.cache.put(pattern, compiled)
	return compiled, nil
}

// patternCache is a bounded LRU cache for compiled patterns.
type patternCache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // front = most recently used
	entries map[string]*list.Element
}

type cacheEntry struct {
	pattern  string
	compiled *regexp.Regexp
}

func newPatternCache(maxSize int) *patternCache {
	return &patternCache{
		maxSize: maxSize,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

func (c *patternCache) get(pattern string) *regexp.Regexp {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[pattern]
	if !ok {
		return nil
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).compiled
}

func (c *patternCache) put(pattern string, compiled *regexp.Regexp) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[pattern]; ok {
		c.order.MoveToFront(elem)
		return
	}
	elem := c.order.PushFront(&cacheEntry{pattern: pattern, compiled: compiled})
	c.entries[pattern] = elem

	if c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).pattern)
		}
	}
}

func (c *patternCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
