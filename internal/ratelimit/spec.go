// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ratelimit admits or rejects outbound calls using fixed windows
// aligned to calendar boundaries of the configured period.
package ratelimit

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Period is the window unit of a rate-limit spec.
type Period string

const (
	PeriodSecond Period = "second"
	PeriodMinute Period = "minute"
	PeriodHour   Period = "hour"
	PeriodDay    Period = "day"
)

// Duration returns the length of one window.
func (p Period) Duration() time.Duration {
	switch p {
	case PeriodSecond:
		return time.Second
	case PeriodMinute:
		return time.Minute
	case PeriodHour:
		return time.Hour
	case PeriodDay:
		return 24 * time.Hour
	}
	return 0
}

// DefaultSpec applies when a configured spec cannot be parsed.
var DefaultSpec = Spec{Limit: 100, Period: PeriodHour}

var specPattern = regexp.MustCompile(`^(\d+)/(second|minute|hour|day)$`)

// Spec is a parsed "N/period" limit.
type Spec struct {
	Limit  int
	Period Period
}

func (s Spec) String() string {
	return fmt.Sprintf("%d/%s", s.Limit, s.Period)
}

// ParseSpec parses "N/period".
func ParseSpec(s string) (Spec, error) {
	m := specPattern.FindStringSubmatch(s)
	if m == nil {
		return Spec{}, fmt.Errorf("invalid rate limit %q: expected N/(second|minute|hour|day)", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return Spec{}, fmt.Errorf("invalid rate limit %q: %w", s, err)
	}
	return Spec{Limit: n, Period: Period(m[2])}, nil
}

// ParseSpecOrDefault parses s, returning DefaultSpec and the parse error when
// s is invalid.
func ParseSpecOrDefault(s string) (Spec, error) {
	spec, err := ParseSpec(s)
	if err != nil {
		return DefaultSpec, err
	}
	return spec, nil
}

// Window returns the [start, end) window containing now, truncated in UTC.
func Window(spec Spec, now time.Time) (start, end time.Time) {
	now = now.UTC()
	switch spec.Period {
	case PeriodSecond:
		start = now.Truncate(time.Second)
	case PeriodMinute:
		start = time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), 0, 0, time.UTC)
	case PeriodHour:
		start = time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, time.UTC)
	default:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	}
	return start, start.Add(spec.Period.Duration())
}
