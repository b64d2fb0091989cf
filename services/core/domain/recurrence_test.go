// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// refTime is a fixed Wednesday used by the calendar tests.
var refTime = time.Date(2025, 6, 11, 10, 30, 0, 0, time.UTC)

// TestParseRuleOneShot verifies RFC3339 timestamps parse as one-shot rules.
func TestParseRuleOneShot(t *testing.T) {
	at := refTime.Add(2 * time.Hour)
	rule, err := ParseRule(at.Format(time.RFC3339), refTime)
	require.NoError(t, err)
	assert.Equal(t, RuleOneShot, rule.Kind)
	assert.True(t, rule.At.Equal(at))
	assert.False(t, rule.Recurring())
}

// TestParseRuleOneShotPast verifies past instants are rejected.
func TestParseRuleOneShotPast(t *testing.T) {
	past := refTime.Add(-time.Hour)
	_, err := ParseRule(past.Format(time.RFC3339), refTime)
	require.Error(t, err)
	assert.True(t, RejectionIs(err, RejectInvalidParameter))
}

// TestParseRuleIntervals verifies the interval grammar and its unit forms.
func TestParseRuleIntervals(t *testing.T) {
	tests := []struct {
		text    string
		seconds int
	}{
		{"every 90m", 5400},
		{"every 2 hours", 7200},
		{"every 45 seconds", 45},
		{"every 1 day", 86400},
		{"EVERY 30 MIN", 1800},
	}
	for _, tt := range tests {
		rule, err := ParseRule(tt.text, refTime)
		require.NoError(t, err, tt.text)
		assert.Equal(t, RuleFixedInterval, rule.Kind, tt.text)
		assert.Equal(t, tt.seconds, rule.IntervalSeconds, tt.text)
	}
}

// TestParseRuleIntervalBounds verifies the 30s..7d interval clamp.
func TestParseRuleIntervalBounds(t *testing.T) {
	_, err := ParseRule("every 10 seconds", refTime)
	assert.True(t, RejectionIs(err, RejectInvalidParameter))

	_, err = ParseRule("every 8 days", refTime)
	assert.True(t, RejectionIs(err, RejectInvalidParameter))
}

// TestParseRuleCalendar verifies the daily, weekdays, and weekly forms.
func TestParseRuleCalendar(t *testing.T) {
	rule, err := ParseRule("daily at 09:00", refTime)
	require.NoError(t, err)
	assert.Equal(t, RuleDailyAt, rule.Kind)
	assert.Equal(t, 540, rule.MinuteOfDay)

	rule, err = ParseRule("weekdays at 07:30", refTime)
	require.NoError(t, err)
	assert.Equal(t, RuleWeekdaysAt, rule.Kind)
	assert.Equal(t, 450, rule.MinuteOfDay)

	rule, err = ParseRule("every monday at 18:30", refTime)
	require.NoError(t, err)
	assert.Equal(t, RuleWeeklyAt, rule.Kind)
	assert.Equal(t, time.Monday, rule.Weekday)
	assert.Equal(t, 1110, rule.MinuteOfDay)
}

// TestParseRuleUnrecognized verifies junk text is rejected with a hint.
func TestParseRuleUnrecognized(t *testing.T) {
	for _, text := range []string{"", "whenever", "every blue moon", "daily at 25:00"} {
		_, err := ParseRule(text, refTime)
		assert.True(t, RejectionIs(err, RejectInvalidParameter), text)
	}
}

// TestComputeNextFireInterval verifies fixed intervals step from the
// reference time.
func TestComputeNextFireInterval(t *testing.T) {
	rule := RecurrenceRule{Kind: RuleFixedInterval, IntervalSeconds: 600}
	next, err := ComputeNextFire(rule, refTime)
	require.NoError(t, err)
	assert.True(t, next.Equal(refTime.Add(10*time.Minute)))
}

// TestComputeNextFireDaily verifies same-day and next-day rollover.
func TestComputeNextFireDaily(t *testing.T) {
	// 10:30 reference, 18:00 fire time: today.
	rule := RecurrenceRule{Kind: RuleDailyAt, MinuteOfDay: 18 * 60}
	next, err := ComputeNextFire(rule, refTime)
	require.NoError(t, err)
	assert.Equal(t, refTime.Day(), next.Day())
	assert.Equal(t, 18, next.Hour())

	// 10:30 reference, 09:00 fire time: tomorrow.
	rule.MinuteOfDay = 9 * 60
	next, err = ComputeNextFire(rule, refTime)
	require.NoError(t, err)
	assert.Equal(t, refTime.Day()+1, next.Day())
	assert.Equal(t, 9, next.Hour())
}

// TestComputeNextFireWeekdays verifies Friday evening rolls to Monday.
func TestComputeNextFireWeekdays(t *testing.T) {
	friday := time.Date(2025, 6, 13, 20, 0, 0, 0, time.UTC)
	rule := RecurrenceRule{Kind: RuleWeekdaysAt, MinuteOfDay: 9 * 60}
	next, err := ComputeNextFire(rule, friday)
	require.NoError(t, err)
	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 9, next.Hour())
}

// TestComputeNextFireWeekly verifies the weekly rule lands on the right
// weekday strictly after the reference.
func TestComputeNextFireWeekly(t *testing.T) {
	rule := RecurrenceRule{Kind: RuleWeeklyAt, Weekday: time.Wednesday, MinuteOfDay: 10 * 60}
	// Reference is Wednesday 10:30, so 10:00 already passed: next week.
	next, err := ComputeNextFire(rule, refTime)
	require.NoError(t, err)
	assert.Equal(t, time.Wednesday, next.Weekday())
	assert.True(t, next.After(refTime))
	assert.Equal(t, refTime.AddDate(0, 0, 7).Day(), next.Day())
}

// TestRuleValidate verifies the zero value and malformed variants fail.
func TestRuleValidate(t *testing.T) {
	assert.Error(t, RecurrenceRule{}.Validate())
	assert.Error(t, RecurrenceRule{Kind: RuleOneShot}.Validate())
	assert.Error(t, RecurrenceRule{Kind: RuleFixedInterval}.Validate())
	assert.Error(t, RecurrenceRule{Kind: RuleDailyAt, MinuteOfDay: 1440}.Validate())
	assert.NoError(t, RecurrenceRule{Kind: RuleDailyAt, MinuteOfDay: 0}.Validate())
}
