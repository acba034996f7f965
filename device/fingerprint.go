package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint is what the exam client reports about the browser/device.
type Fingerprint struct {
	ScreenResolution string `json:"screen_resolution" dynamo:"screen_resolution"`
	Timezone         string `json:"timezone" dynamo:"timezone"`
	Canvas           string `json:"canvas" dynamo:"canvas"`
	WebGL            string `json:"webgl" dynamo:"webgl"`
	Audio            string `json:"audio" dynamo:"audio"`
	FontHash         string `json:"font_hash" dynamo:"font_hash"`
	Platform         string `json:"platform" dynamo:"platform"`
}

type fingerprintField struct {
	weight int
	value  func(Fingerprint) string
}

// weights sum to 100; rendering fingerprints are the hardest to fake
var fingerprintFields = []fingerprintField{
	{20, func(f Fingerprint) string { return f.Canvas }},
	{20, func(f Fingerprint) string { return f.WebGL }},
	{15, func(f Fingerprint) string { return f.Audio }},
	{15, func(f Fingerprint) string { return f.FontHash }},
	{10, func(f Fingerprint) string { return f.ScreenResolution }},
	{10, func(f Fingerprint) string { return f.Timezone }},
	{10, func(f Fingerprint) string { return f.Platform }},
}

// Hash is a stable digest of all fields.
func (f Fingerprint) Hash() string {
	parts := make([]string, 0, len(fingerprintFields))
	for _, field := range fingerprintFields {
		parts = append(parts, strings.TrimSpace(field.value(f)))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// MissingFields counts empty fields.
func (f Fingerprint) MissingFields() int {
	n := 0
	for _, field := range fingerprintFields {
		if strings.TrimSpace(field.value(f)) == "" {
			n++
		}
	}
	return n
}

func (f Fingerprint) IsEmpty() bool {
	return f.MissingFields() == len(fingerprintFields)
}

// EvaluateMatch compares an incoming fingerprint against the stored one
// and returns a similarity score in [0,100]. Fields missing on either
// side are left out of the comparison; with nothing comparable the
// devices are considered a match.
func EvaluateMatch(stored Fingerprint, incoming Fingerprint) int {
	matched := 0
	comparable := 0
	for _, field := range fingerprintFields {
		a := strings.TrimSpace(field.value(stored))
		b := strings.TrimSpace(field.value(incoming))
		if a == "" || b == "" {
			continue
		}
		comparable += field.weight
		if a == b {
			matched += field.weight
		}
	}
	if comparable == 0 {
		return 100
	}
	return matched * 100 / comparable
}
