package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{name: "ready to processed", from: StatusReadyToProcess, to: StatusProcessed},
		{name: "ready to failed", from: StatusReadyToProcess, to: StatusFailed},
		{name: "processed to failed", from: StatusProcessed, to: StatusFailed, wantErr: true},
		{name: "failed to processed", from: StatusFailed, to: StatusProcessed, wantErr: true},
		{name: "processed to ready", from: StatusProcessed, to: StatusReadyToProcess, wantErr: true},
		{name: "ready to ready", from: StatusReadyToProcess, to: StatusReadyToProcess, wantErr: true},
		{name: "unknown status", from: Status("RUNNING"), to: StatusProcessed, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Transition(tt.from, tt.to)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusReadyToProcess.IsTerminal())
	assert.True(t, StatusProcessed.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("manual")
	require.NoError(t, err)
	assert.Equal(t, KindManual, kind)

	kind, err = ParseKind("scheduled")
	require.NoError(t, err)
	assert.Equal(t, KindScheduled, kind)

	_, err = ParseKind("hourly")
	assert.Error(t, err)

	assert.Equal(t, []Kind{KindScheduled, KindManual}, Kinds())
}

func TestErrorClasses(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("%w: %w", ErrSink, cause)

	assert.ErrorIs(t, err, ErrSink)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrDownload)
}
