// Copyright © 2025 Orgstream Labs, Inc.
//
// SPDX-License-Identifier: Apache-2.0
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

package retry

import (
	"context"
	"fmt"
	"testing"

	"github.com/orgstream-labs/orgindexer/internal/confutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryEventuallySucceeds(t *testing.T) {
	r := NewRetryIndefinite(&Config{
		InitialDelay: confutil.P("1ns"),
		MaxDelay:     confutil.P("1us"),
	})
	calls := 0
	err := r.Do(context.Background(), func(attempt int) (bool, error) {
		calls++
		if calls < 3 {
			return true, fmt.Errorf("pop")
		}
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryLimitedPops(t *testing.T) {
	r := NewRetryLimited(&ConfigWithMax{
		Config: Config{
			InitialDelay: confutil.P("1ns"),
			MaxDelay:     confutil.P("1us"),
		},
		MaxAttempts: confutil.P(2),
	})
	calls := 0
	err := r.Do(context.Background(), func(attempt int) (bool, error) {
		calls++
		return true, fmt.Errorf("pop %d", attempt)
	})
	assert.Regexp(t, "pop 2", err)
	assert.Equal(t, 2, calls)
}

func TestRetryCanceledContext(t *testing.T) {
	r := NewRetryIndefinite(&Config{
		InitialDelay: confutil.P("1h"),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Do(ctx, func(attempt int) (bool, error) {
		return true, fmt.Errorf("pop")
	})
	assert.Regexp(t, "OI010700", err)
}

func TestRetryNonRetryable(t *testing.T) {
	r := NewRetryIndefinite(&Config{})
	calls := 0
	err := r.Do(context.Background(), func(attempt int) (bool, error) {
		calls++
		return false, fmt.Errorf("fatal")
	})
	assert.Regexp(t, "fatal", err)
	assert.Equal(t, 1, calls)
}
