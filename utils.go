package main

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// formatBotResponse prefixes a command result line with the bot name
func formatBotResponse(botName, message string) string {
	return fmt.Sprintf("<%s> %s", botName, message)
}

// formatStaticResponse formats a command result line not tied to one bot
func formatStaticResponse(message string) string {
	return fmt.Sprintf("<buff-deliver> %s", message)
}

// itemSignature produces an order-independent signature for a set of asset ids
func itemSignature(assetIDs []string) string {
	ids := append([]string(nil), assetIDs...)
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// twoFactorChars is the Steam Guard code alphabet
const twoFactorChars = "23456789BCDFGHJKMNPQRTVWXY"

// generateTwoFactorCode derives the current Steam Guard code from a
// base64-encoded shared secret
func generateTwoFactorCode(sharedSecret string, now time.Time) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(sharedSecret)
	if err != nil {
		return "", fmt.Errorf("invalid shared secret: %v", err)
	}

	var interval [8]byte
	binary.BigEndian.PutUint64(interval[:], uint64(now.Unix()/30))

	mac := hmac.New(sha1.New, secret)
	mac.Write(interval[:])
	sum := mac.Sum(nil)

	start := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[start:start+4]) & 0x7fffffff

	out := make([]byte, 5)
	for i := range out {
		out[i] = twoFactorChars[code%uint32(len(twoFactorChars))]
		code /= uint32(len(twoFactorChars))
	}
	return string(out), nil
}

// sendJSONResponse sends a JSON response to the client
func sendJSONResponse(w http.ResponseWriter, response interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
