// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"reflect"
	"strings"
	"testing"

	"github.com/aplane-ton/custody/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsCoverConfig(t *testing.T) {
	rows := fields(reflect.TypeOf(util.Config{}), "")
	byKey := make(map[string]field, len(rows))
	for _, r := range rows {
		byKey[r.Key] = r
	}

	require.Contains(t, byKey, "device")
	assert.Equal(t, "object", byKey["device"].Type)
	assert.Equal(t, "`custody`", byKey["device.app_name"].Default)
	assert.Equal(t, "map[string]string", byKey["contract_expirations"].Type)
	assert.Equal(t, "[]string", byKey["password_command_argv"].Type)
	assert.Equal(t, "(none)", byKey["password_command_argv"].Default)
	assert.Equal(t, "`5m`", byKey["approval_timeout"].Default)

	for _, r := range rows {
		assert.NotEqual(t, "(no description)", r.Description, r.Key)
	}
}

func TestWriteReference(t *testing.T) {
	var b strings.Builder
	writeReference(&b)
	out := b.String()

	assert.Contains(t, out, "| `keystore` | string | `keystore` |")
	assert.Contains(t, out, "| `multisig_2_extended` | `24h` |")
	assert.Contains(t, out, "CUSTODY_DISABLE_MEMORY_LOCK")
}
