package permission

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "permit/pkg/domain-errors"
)

func TestTimeWindowContains(t *testing.T) {
	tests := []struct {
		name   string
		window TimeWindow
		hour   int
		want   bool
	}{
		{"inside plain window", TimeWindow{StartHour: 9, EndHour: 17}, 12, true},
		{"start is inclusive", TimeWindow{StartHour: 9, EndHour: 17}, 9, true},
		{"end is exclusive", TimeWindow{StartHour: 9, EndHour: 17}, 17, false},
		{"before plain window", TimeWindow{StartHour: 9, EndHour: 17}, 8, false},
		{"wrapped window late evening", TimeWindow{StartHour: 22, EndHour: 6}, 23, true},
		{"wrapped window after midnight", TimeWindow{StartHour: 22, EndHour: 6}, 3, true},
		{"wrapped window start hour", TimeWindow{StartHour: 22, EndHour: 6}, 22, true},
		{"wrapped window end hour", TimeWindow{StartHour: 22, EndHour: 6}, 6, false},
		{"wrapped window midday", TimeWindow{StartHour: 22, EndHour: 6}, 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.window.Contains(tt.hour))
		})
	}
}

func TestAmountCeilingInclusive(t *testing.T) {
	ceiling := AmountCeiling{Limit: 100}
	assert.True(t, ceiling.Allows(40))
	assert.True(t, ceiling.Allows(100), "limit is inclusive")
	assert.False(t, ceiling.Allows(100.01))
}

func TestConditionsValidate(t *testing.T) {
	valid := Conditions{
		TimeWindow:    &TimeWindow{StartHour: 22, EndHour: 6},
		AmountCeiling: &AmountCeiling{Limit: 50},
	}
	require.NoError(t, valid.Validate())
	require.NoError(t, Conditions{}.Validate())

	for name, conditions := range map[string]Conditions{
		"start hour too large": {TimeWindow: &TimeWindow{StartHour: 24, EndHour: 6}},
		"negative end hour":    {TimeWindow: &TimeWindow{StartHour: 0, EndHour: -1}},
		"negative limit":       {AmountCeiling: &AmountCeiling{Limit: -5}},
	} {
		t.Run(name, func(t *testing.T) {
			err := conditions.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestConditionsWireFormat(t *testing.T) {
	conditions := Conditions{
		TimeWindow:    &TimeWindow{StartHour: 22, EndHour: 6},
		AmountCeiling: &AmountCeiling{Limit: 100},
	}

	encoded, err := json.Marshal(conditions)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"time_restrictions":{"start_hour":22,"end_hour":6},"amount_limit":100}`,
		string(encoded),
	)

	var decoded Conditions
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, conditions, decoded)

	var empty Conditions
	require.NoError(t, json.Unmarshal([]byte(`{}`), &empty))
	assert.True(t, empty.IsZero())
}

func TestOverrideExpiredAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var override Override
	assert.False(t, override.ExpiredAt(now), "no expiry never expires")

	past := now.Add(-time.Minute)
	override.ExpiresAt = &past
	assert.True(t, override.ExpiredAt(now))

	override.ExpiresAt = &now
	assert.True(t, override.ExpiredAt(now), "expiry at the instant counts as expired")

	future := now.Add(time.Minute)
	override.ExpiresAt = &future
	assert.False(t, override.ExpiredAt(now))
}

func TestMembershipActiveAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	membership := Membership{Active: true}
	assert.True(t, membership.ActiveAt(now))

	past := now.Add(-time.Hour)
	membership.ExpiresAt = &past
	assert.False(t, membership.ActiveAt(now))

	future := now.Add(time.Hour)
	membership.ExpiresAt = &future
	assert.True(t, membership.ActiveAt(now))

	membership.Active = false
	assert.False(t, membership.ActiveAt(now))
}
