package database

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/ui-verify/pkg/models"
)

func TestConsoleEncoding(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msgs := []models.ConsoleMessage{
		{Type: "log", Text: "help page ready", Timestamp: ts},
		{Type: "error", Text: "missing translation: ur.title", Timestamp: ts},
	}

	enc, err := encodeConsole(msgs)
	require.NoError(t, err)
	assert.True(t, enc.Valid)

	dec, err := decodeConsole(enc)
	require.NoError(t, err)
	assert.Equal(t, msgs, dec)
}

func TestConsoleEncoding_Empty(t *testing.T) {
	enc, err := encodeConsole(nil)
	require.NoError(t, err)
	assert.False(t, enc.Valid)

	dec, err := decodeConsole(sql.NullString{})
	require.NoError(t, err)
	assert.Nil(t, dec)
}

func TestDecodeConsole_Invalid(t *testing.T) {
	_, err := decodeConsole(sql.NullString{String: "{not json", Valid: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode console messages")
}

func TestNullString(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.Equal(t, sql.NullString{String: "x", Valid: true}, nullString("x"))
}
