// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VeilChat Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requireOops unwraps err as an oops error, failing the test when the
// chain carries no oops frame.
func requireOops(t *testing.T, err error) oops.OopsError {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "error chain has no oops frame: %T: %v", err, err)
	return oopsErr
}

// AssertErrorCode asserts that err carries the given machine-readable
// error code (the AUTH_*/MIGRATION_*/... register used across packages).
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	assert.Equal(t, code, requireOops(t, err).Code())
}

// AssertErrorContext asserts that err carries the given structured
// context key with the given value.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	ctx := requireOops(t, err).Context()
	require.Contains(t, ctx, key, "error context has no %q key", key)
	assert.Equal(t, value, ctx[key])
}
