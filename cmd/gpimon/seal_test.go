package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpimon/internal/infra/config"
)

func TestRunSeal(t *testing.T) {
	t.Setenv(config.KeyEnv, "board-key")

	var out bytes.Buffer
	require.NoError(t, runSeal(strings.NewReader("panel-token\n"), &out))

	sealed := strings.TrimSpace(out.String())
	assert.True(t, config.IsSealed(sealed))
	plain, err := config.OpenSecret(sealed, "board-key")
	require.NoError(t, err)
	assert.Equal(t, "panel-token", plain)
}

func TestRunSealNoTrailingNewline(t *testing.T) {
	t.Setenv(config.KeyEnv, "k")

	var out bytes.Buffer
	require.NoError(t, runSeal(strings.NewReader("tok"), &out))
	plain, err := config.OpenSecret(strings.TrimSpace(out.String()), "k")
	require.NoError(t, err)
	assert.Equal(t, "tok", plain)
}

func TestRunSealErrors(t *testing.T) {
	t.Setenv(config.KeyEnv, "")
	assert.ErrorContains(t, runSeal(strings.NewReader("tok\n"), &bytes.Buffer{}), config.KeyEnv)

	t.Setenv(config.KeyEnv, "k")
	assert.ErrorContains(t, runSeal(strings.NewReader("\n"), &bytes.Buffer{}), "empty secret")
}
