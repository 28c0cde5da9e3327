package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBotResponse(t *testing.T) {
	assert.Equal(t, "<alpha> hello", formatBotResponse("alpha", "hello"))
	assert.Equal(t, "<buff-deliver> Bot not found: x", formatStaticResponse("Bot not found: x"))
}

func TestItemSignature(t *testing.T) {
	tests := []struct {
		name string
		ids  []string
		want string
	}{
		{"empty", nil, ""},
		{"single", []string{"a1"}, "a1"},
		{"sorted", []string{"a1", "a2"}, "a1,a2"},
		{"unsorted", []string{"a2", "a1"}, "a1,a2"},
		{"duplicates kept", []string{"a1", "a1"}, "a1,a1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, itemSignature(tt.ids))
		})
	}
}

func TestItemSignatureDoesNotMutateInput(t *testing.T) {
	ids := []string{"b", "a"}
	itemSignature(ids)
	assert.Equal(t, []string{"b", "a"}, ids)
}

func TestGenerateTwoFactorCode(t *testing.T) {
	// "0123456789abcdefghij" base64-encoded
	secret := "MDEyMzQ1Njc4OWFiY2RlZmdoaWo="
	now := time.Unix(1699999980, 0) // interval-aligned

	code, err := generateTwoFactorCode(secret, now)
	require.NoError(t, err)
	assert.Len(t, code, 5)
	for _, c := range code {
		assert.True(t, strings.ContainsRune(twoFactorChars, c), "code char %q outside the Steam Guard alphabet", c)
	}

	// Deterministic within a 30 second interval
	again, err := generateTwoFactorCode(secret, now.Add(29*time.Second))
	require.NoError(t, err)
	assert.Equal(t, code, again)
}

func TestGenerateTwoFactorCodeInvalidSecret(t *testing.T) {
	_, err := generateTwoFactorCode("not-base64!!!", time.Now())
	assert.Error(t, err)
}
