package violation_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/proctor/violation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetermineSeverity(t *testing.T) {
	tests := []struct {
		typ      violation.Type
		count    int
		expected violation.Severity
	}{
		{violation.TypeTabSwitch, 1, violation.SeverityWarning},
		{violation.TypeTabSwitch, 2, violation.SeverityWarning},
		{violation.TypeTabSwitch, 3, violation.SeverityMedium},
		{violation.TypeTabSwitch, 4, violation.SeverityMedium},
		{violation.TypeTabSwitch, 5, violation.SeverityHigh},
		{violation.TypeTabSwitch, 6, violation.SeverityHigh},
		{violation.TypeFullscreenExit, 3, violation.SeverityMedium},
		{violation.TypeMultiDevice, 1, violation.SeverityCritical},
		{violation.TypeMultiDevice, 100, violation.SeverityCritical},
		{violation.TypeVpnDetected, 1, violation.SeverityCritical},
		{violation.TypeOther, 7, violation.SeverityHigh},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, violation.DetermineSeverity(tc.typ, tc.count), "%s x%d", tc.typ, tc.count)
	}
}

func TestEveryTypeHasPolicy(t *testing.T) {
	for _, typ := range violation.AllTypes() {
		p := typ.Policy()
		assert.NotEmpty(t, p.Label, "type %s", typ)
		if p.ImmediateDisqualify {
			require.NotNil(t, p.Fixed)
			assert.Equal(t, violation.SeverityCritical, *p.Fixed)
		}
	}
}

func TestParseType(t *testing.T) {
	assert.Equal(t, violation.TypeTabSwitch, violation.ParseType("tab_switch"))
	assert.Equal(t, violation.TypeVpnDetected, violation.ParseType("vpn_detected"))
	assert.Equal(t, violation.TypeOther, violation.ParseType("screenshot_taken"))
	assert.Equal(t, violation.TypeOther, violation.ParseType(""))
}

func TestOccurIsAppendOnly(t *testing.T) {
	now := time.Now()
	v := violation.New(uuid.New(), "tab_switch", now)
	for i := 0; i < 6; i++ {
		require.NoError(t, v.Occur(now))
	}
	assert.Equal(t, 6, v.Count)
	assert.Equal(t, violation.SeverityHigh, v.Severity)

	v.Resolve(violation.ResolutionUpheld, now)
	assert.True(t, v.Resolved)
	assert.Error(t, v.Occur(now))
	assert.Equal(t, 6, v.Count)
}
