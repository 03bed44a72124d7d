package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand_SubmitCodeBeforeFlags(t *testing.T) {
	cmd, err := parseCommand([]string{"submit", "CUST01", "-index", "95,5", "-photo", "/tmp/m.jpg", "-lat", "4.05", "-lon", "9.7", "-yes"})

	require.NoError(t, err)
	assert.Equal(t, "submit", cmd.Name)
	assert.Equal(t, "CUST01", cmd.Code)
	assert.Equal(t, "95,5", cmd.Index)
	assert.Equal(t, "/tmp/m.jpg", cmd.Photo)
	assert.True(t, cmd.Yes)
	require.NotNil(t, cmd.Location)
	assert.Equal(t, 4.05, cmd.Location.Latitude)
	assert.Equal(t, 9.7, cmd.Location.Longitude)
}

func TestParseCommand_SubmitCodeAfterFlags(t *testing.T) {
	cmd, err := parseCommand([]string{"submit", "-inaccessible", "-comments", "gate locked", "CUST01"})

	require.NoError(t, err)
	assert.Equal(t, "CUST01", cmd.Code)
	assert.True(t, cmd.Inaccessible)
	assert.Equal(t, "gate locked", cmd.Comments)
	assert.Nil(t, cmd.Location)
}

func TestParseCommand_LatitudeNeedsLongitude(t *testing.T) {
	_, err := parseCommand([]string{"submit", "CUST01", "-lat", "4.05"})

	assert.ErrorContains(t, err, "-lat and -lon")
}

func TestParseCommand_Login(t *testing.T) {
	cmd, err := parseCommand([]string{"login", "-email", "agent@example.test", "-password", "secret"})

	require.NoError(t, err)
	assert.Equal(t, "agent@example.test", cmd.Email)
	assert.Equal(t, "secret", cmd.Password)
}

func TestParseCommand_Errors(t *testing.T) {
	cases := map[string][]string{
		"no command":      {},
		"unknown command": {"delete"},
		"missing code":    {"lookup"},
		"extra code":      {"bills", "A", "B"},
		"unexpected arg":  {"logout", "now"},
		"unknown flag":    {"complain", "CUST01", "-urgent"},
		"bad float":       {"submit", "CUST01", "-lat", "north", "-lon", "1"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseCommand(args)
			assert.Error(t, err)
		})
	}
}

func TestParseCommand_Help(t *testing.T) {
	_, err := parseCommand([]string{"help"})
	assert.ErrorIs(t, err, errHelp)

	_, err = parseCommand([]string{"submit", "-h"})
	assert.ErrorIs(t, err, errHelp)
}
