package featureflag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoRechargeEnabledRequiresBothSwitches(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	cases := []struct {
		name    string
		env     string
		dbFlag  bool
		enabled bool
	}{
		{"both on", "true", true, true},
		{"env off", "false", true, false},
		{"env unset", "", true, false},
		{"db off", "true", false, false},
		{"both off", "false", false, false},
		{"env garbage", "banana", true, false},
		{"env numeric true", "1", true, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(EnvAutoRecharge, tc.env)
			require.NoError(t, store.SetEnabled(ctx, FlagAutoRecharge, tc.dbFlag))

			enabled, err := AutoRechargeEnabled(ctx, store)
			require.NoError(t, err)
			assert.Equal(t, tc.enabled, enabled)
		})
	}
}

func TestUnknownFlagIsOff(t *testing.T) {
	enabled, err := NewMemStore().IsEnabled(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, enabled)
}
