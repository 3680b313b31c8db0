package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalValidate(t *testing.T) {
	tests := []struct {
		name    string
		signal  Signal
		wantErr bool
	}{
		{"valid buy", Signal{Action: ActionBuy, Symbol: "BTCUSDT", Price: 100, Confidence: 0.7}, false},
		{"zero price passes shape check", Signal{Action: ActionSell, Symbol: "BTCUSDT", Price: 0, Confidence: 0.7}, false},
		{"unknown action", Signal{Action: "SHORT", Symbol: "BTCUSDT", Price: 100, Confidence: 0.7}, true},
		{"missing symbol", Signal{Action: ActionBuy, Price: 100, Confidence: 0.7}, true},
		{"nan price", Signal{Action: ActionBuy, Symbol: "BTCUSDT", Price: math.NaN(), Confidence: 0.7}, true},
		{"confidence above one", Signal{Action: ActionBuy, Symbol: "BTCUSDT", Price: 100, Confidence: 1.2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.signal.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestActionSide(t *testing.T) {
	side, ok := ActionBuy.Side()
	assert.True(t, ok)
	assert.Equal(t, SideBuy, side)
	assert.Equal(t, SideSell, side.Opposite())

	_, ok = ActionHold.Side()
	assert.False(t, ok)

	a, err := ParseAction(" sell ")
	assert.NoError(t, err)
	assert.Equal(t, ActionSell, a)
}
