// Copyright (C) 2025 Voltcord Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Recurrence Rules
// =============================================================================

// RuleKind tags the closed set of recurrence variants. Rules are decided once
// at creation time from collaborator free text and never re-parsed during
// dispatch.
type RuleKind string

const (
	// RuleOneShot fires once at a fixed instant, then the reminder is
	// disabled.
	RuleOneShot RuleKind = "one_shot"

	// RuleFixedInterval fires every N seconds from the reference time.
	RuleFixedInterval RuleKind = "fixed_interval"

	// RuleDailyAt fires every day at a wall-clock time.
	RuleDailyAt RuleKind = "daily_at"

	// RuleWeeklyAt fires on one weekday at a wall-clock time.
	RuleWeeklyAt RuleKind = "weekly_at"

	// RuleWeekdaysAt fires Monday through Friday at a wall-clock time.
	RuleWeekdaysAt RuleKind = "weekdays_at"
)

// RecurrenceRule is the tagged variant. Only the fields relevant to Kind are
// populated; the zero value is invalid.
type RecurrenceRule struct {
	Kind RuleKind `json:"kind"`

	// At is the fire instant for RuleOneShot.
	At time.Time `json:"at,omitempty"`

	// IntervalSeconds is the period for RuleFixedInterval. Always > 0.
	IntervalSeconds int `json:"intervalSeconds,omitempty"`

	// Weekday applies to RuleWeeklyAt.
	Weekday time.Weekday `json:"weekday,omitempty"`

	// MinuteOfDay is the wall-clock fire time for the calendar rules,
	// expressed as minutes after midnight (0..1439).
	MinuteOfDay int `json:"minuteOfDay,omitempty"`
}

// Validate checks internal consistency of the rule.
func (r RecurrenceRule) Validate() error {
	switch r.Kind {
	case RuleOneShot:
		if r.At.IsZero() {
			return NewFieldRejection(RejectInvalidParameter, "recurrence", "one-shot rule requires a fire time")
		}
	case RuleFixedInterval:
		if r.IntervalSeconds <= 0 {
			return NewFieldRejection(RejectInvalidParameter, "recurrence", "interval must be positive")
		}
	case RuleDailyAt, RuleWeekdaysAt:
		if r.MinuteOfDay < 0 || r.MinuteOfDay > 1439 {
			return NewFieldRejection(RejectInvalidParameter, "recurrence", "time of day out of range")
		}
	case RuleWeeklyAt:
		if r.MinuteOfDay < 0 || r.MinuteOfDay > 1439 {
			return NewFieldRejection(RejectInvalidParameter, "recurrence", "time of day out of range")
		}
		if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
			return NewFieldRejection(RejectInvalidParameter, "recurrence", "invalid weekday")
		}
	default:
		return NewFieldRejection(RejectInvalidParameter, "recurrence", "unknown rule kind")
	}
	return nil
}

// Recurring reports whether the rule reschedules after firing.
func (r RecurrenceRule) Recurring() bool {
	return r.Kind != RuleOneShot
}

// String renders the rule for display and logging.
func (r RecurrenceRule) String() string {
	switch r.Kind {
	case RuleOneShot:
		return "once at " + r.At.Format(time.RFC3339)
	case RuleFixedInterval:
		return fmt.Sprintf("every %s", time.Duration(r.IntervalSeconds)*time.Second)
	case RuleDailyAt:
		return fmt.Sprintf("every day at %s", r.clock())
	case RuleWeeklyAt:
		return fmt.Sprintf("every %s at %s", r.Weekday, r.clock())
	case RuleWeekdaysAt:
		return fmt.Sprintf("weekdays at %s", r.clock())
	default:
		return "invalid rule"
	}
}

func (r RecurrenceRule) clock() string {
	return fmt.Sprintf("%02d:%02d", r.MinuteOfDay/60, r.MinuteOfDay%60)
}

// =============================================================================
// Next-Fire Computation
// =============================================================================

// ComputeNextFire returns the next fire instant for the rule, strictly after
// the reference time for calendar rules and exactly from+interval for fixed
// intervals. The function is pure: the same rule and reference always produce
// the same instant. Calendar arithmetic uses the reference time's location.
func ComputeNextFire(rule RecurrenceRule, from time.Time) (time.Time, error) {
	if err := rule.Validate(); err != nil {
		return time.Time{}, err
	}

	switch rule.Kind {
	case RuleOneShot:
		return rule.At, nil

	case RuleFixedInterval:
		return from.Add(time.Duration(rule.IntervalSeconds) * time.Second), nil

	case RuleDailyAt:
		next := atMinute(from, rule.MinuteOfDay)
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil

	case RuleWeeklyAt:
		next := atMinute(from, rule.MinuteOfDay)
		for next.Weekday() != rule.Weekday || !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil

	case RuleWeekdaysAt:
		next := atMinute(from, rule.MinuteOfDay)
		for isWeekend(next.Weekday()) || !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil
	}

	return time.Time{}, NewFieldRejection(RejectInvalidParameter, "recurrence", "unknown rule kind")
}

// atMinute returns the instant on ref's calendar day at the given minute of
// day, in ref's location.
func atMinute(ref time.Time, minuteOfDay int) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(),
		minuteOfDay/60, minuteOfDay%60, 0, 0, ref.Location())
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}

// =============================================================================
// Free-Text Rule Parsing
// =============================================================================

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var (
	intervalPattern = regexp.MustCompile(`^every\s+(\d+)\s*(s|sec|secs|seconds?|m|min|mins|minutes?|h|hr|hrs|hours?|d|days?)$`)
	dailyPattern    = regexp.MustCompile(`^(?:daily|every\s*day|everyday)(?:\s+at)?\s+(\d{1,2}):(\d{2})$`)
	weekdaysPattern = regexp.MustCompile(`^(?:weekdays|every\s+weekday)(?:\s+at)?\s+(\d{1,2}):(\d{2})$`)
	weeklyPattern   = regexp.MustCompile(`^every\s+([a-z]+)(?:\s+at)?\s+(\d{1,2}):(\d{2})$`)
)

// ParseRule turns collaborator free text into a recurrence rule. Supported
// forms:
//
//	RFC3339 timestamp                   one-shot at that instant
//	"every 90m", "every 2 hours"       fixed interval (min 30s, max 7 days)
//	"daily at 09:00"                   daily at wall-clock time
//	"weekdays at 07:30"                Monday through Friday
//	"every monday at 18:30"            weekly on that weekday
//
// Invalid text returns an invalid_parameter rejection on the "recurrence"
// field. One-shot instants must be in the future relative to now.
func ParseRule(text string, now time.Time) (RecurrenceRule, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return RecurrenceRule{}, NewFieldRejection(RejectInvalidParameter, "recurrence", "empty recurrence text")
	}

	// One-shot: an absolute timestamp.
	if at, err := time.Parse(time.RFC3339, trimmed); err == nil {
		if !at.After(now) {
			return RecurrenceRule{}, NewFieldRejection(RejectInvalidParameter, "recurrence", "one-shot time must be in the future")
		}
		return RecurrenceRule{Kind: RuleOneShot, At: at}, nil
	}

	lower := strings.ToLower(trimmed)

	if m := intervalPattern.FindStringSubmatch(lower); m != nil {
		value, err := strconv.Atoi(m[1])
		if err != nil || value <= 0 {
			return RecurrenceRule{}, NewFieldRejection(RejectInvalidParameter, "recurrence", "interval must be positive")
		}
		seconds := value * unitSeconds(m[2])
		if seconds < 30 || seconds > 7*24*3600 {
			return RecurrenceRule{}, NewFieldRejection(RejectInvalidParameter, "recurrence",
				"interval must be between 30 seconds and 7 days")
		}
		return RecurrenceRule{Kind: RuleFixedInterval, IntervalSeconds: seconds}, nil
	}

	if m := dailyPattern.FindStringSubmatch(lower); m != nil {
		minute, err := parseClock(m[1], m[2])
		if err != nil {
			return RecurrenceRule{}, err
		}
		return RecurrenceRule{Kind: RuleDailyAt, MinuteOfDay: minute}, nil
	}

	if m := weekdaysPattern.FindStringSubmatch(lower); m != nil {
		minute, err := parseClock(m[1], m[2])
		if err != nil {
			return RecurrenceRule{}, err
		}
		return RecurrenceRule{Kind: RuleWeekdaysAt, MinuteOfDay: minute}, nil
	}

	if m := weeklyPattern.FindStringSubmatch(lower); m != nil {
		day, ok := weekdayNames[m[1]]
		if !ok {
			return RecurrenceRule{}, NewFieldRejection(RejectInvalidParameter, "recurrence",
				fmt.Sprintf("unknown weekday %q", m[1]))
		}
		minute, err := parseClock(m[2], m[3])
		if err != nil {
			return RecurrenceRule{}, err
		}
		return RecurrenceRule{Kind: RuleWeeklyAt, Weekday: day, MinuteOfDay: minute}, nil
	}

	return RecurrenceRule{}, NewFieldRejection(RejectInvalidParameter, "recurrence",
		"unrecognized recurrence; try an RFC3339 time, \"every 30m\", \"daily at 09:00\", \"weekdays at 07:30\", or \"every monday at 18:30\"")
}

func unitSeconds(unit string) int {
	switch unit[0] {
	case 's':
		return 1
	case 'm':
		return 60
	case 'h':
		return 3600
	case 'd':
		return 86400
	}
	return 1
}

func parseClock(hourText, minuteText string) (int, error) {
	hour, err := strconv.Atoi(hourText)
	if err != nil || hour < 0 || hour > 23 {
		return 0, NewFieldRejection(RejectInvalidParameter, "recurrence", "hour out of range")
	}
	minute, err := strconv.Atoi(minuteText)
	if err != nil || minute < 0 || minute > 59 {
		return 0, NewFieldRejection(RejectInvalidParameter, "recurrence", "minute out of range")
	}
	return hour*60 + minute, nil
}
