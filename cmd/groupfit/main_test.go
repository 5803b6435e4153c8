package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "createsuperuser"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestCreateSuperuserRequiresFlags(t *testing.T) {
	rootCmd.SetArgs([]string{"createsuperuser", "--email", "root@example.com"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "--password"))
}
