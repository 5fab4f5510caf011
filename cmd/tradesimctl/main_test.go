package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetIn(strings.NewReader("s3cret-pass\n"))
	rootCmd.SetArgs([]string{"hash-password"})
	require.NoError(t, rootCmd.Execute())

	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret-pass")))
}

func TestPasswordArg(t *testing.T) {
	p, err := passwordArg(strings.NewReader(""), []string{"direct"})
	require.NoError(t, err)
	assert.Equal(t, "direct", p)

	_, err = passwordArg(strings.NewReader("\n"), nil)
	assert.Error(t, err)

	p, err = passwordArg(strings.NewReader("no-newline"), nil)
	require.NoError(t, err)
	assert.Equal(t, "no-newline", p)
}

func TestMigrateRequiresDSN(t *testing.T) {
	t.Setenv("DB_DSN", "")
	dsn = ""
	rootCmd.SetArgs([]string{"migrate", "version"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DSN")
}
