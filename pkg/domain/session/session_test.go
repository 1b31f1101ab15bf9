package session

import (
	"testing"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to State
		want     bool
	}{
		{StateInitiated, StateConfirmed, true},
		{StateInitiated, StateFailed, true},
		{StateInitiated, StateVoided, false},
		{StateConfirmed, StateVoided, true},
		{StateConfirmed, StateFailed, false},
		{StateFailed, StateConfirmed, false},
		{StateVoided, StateConfirmed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestNew(t *testing.T) {
	s, err := New(uuid.New(), decimal.NewFromInt(100), "usd", "https://shop.example/return")
	require.NoError(t, err)
	assert.Equal(t, StateInitiated, s.State)
	assert.Equal(t, "USD", s.Currency)
	assert.Len(t, s.Token, 32)

	other, err := New(uuid.New(), decimal.NewFromInt(100), "USD", "")
	require.NoError(t, err)
	assert.NotEqual(t, s.Token, other.Token)

	_, err = New(uuid.Nil, decimal.NewFromInt(1), "USD", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = New(uuid.New(), decimal.Zero, "USD", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestIsActive(t *testing.T) {
	assert.True(t, StateInitiated.IsActive())
	assert.True(t, StateConfirmed.IsActive())
	assert.False(t, StateFailed.IsActive())
	assert.False(t, StateVoided.IsActive())
}

func TestConfirmTarget(t *testing.T) {
	assert.Equal(t, StateConfirmed, ConfirmTarget(true))
	assert.Equal(t, StateFailed, ConfirmTarget(false))
}
