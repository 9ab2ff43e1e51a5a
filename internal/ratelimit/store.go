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

package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// WindowKey identifies one counter row.
type WindowKey struct {
	TargetType string
	TargetID   string
	Start      time.Time
}

func (k WindowKey) String() string {
	return fmt.Sprintf("%s:%s:%d", k.TargetType, k.TargetID, k.Start.Unix())
}

// Store persists window counters. Increment must be a single atomic
// compare-and-increment: create the row with count 1, or increment it only
// while count < limit. A rejected call leaves the count unchanged.
type Store interface {
	Increment(ctx context.Context, key WindowKey, limit int, end, now time.Time) (admitted bool, count int, err error)

	// Count returns the current count for key, zero when no row exists.
	Count(ctx context.Context, key WindowKey) (int, error)
}
