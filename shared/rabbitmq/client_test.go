package rabbitmq

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_URI(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantVhost string
	}{
		{
			name:      "default vhost",
			config:    Config{Host: "localhost", Port: 5672, User: "guest", Password: "guest"},
			wantVhost: "/",
		},
		{
			name:      "named vhost",
			config:    Config{Host: "mq", Port: 5673, User: "ga", Password: "pw", VHost: "reports"},
			wantVhost: "reports",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uri, err := amqp.ParseURI(tt.config.URI())
			require.NoError(t, err)
			assert.Equal(t, tt.config.Host, uri.Host)
			assert.Equal(t, tt.config.Port, uri.Port)
			assert.Equal(t, tt.config.User, uri.Username)
			assert.Equal(t, tt.config.Password, uri.Password)
			assert.Equal(t, tt.wantVhost, uri.Vhost)
		})
	}
}

func TestBackoff(t *testing.T) {
	b := backoff{}.withDefaults()
	assert.Equal(t, 3, b.retries)
	assert.Equal(t, 100*time.Millisecond, b.delay(0))
	assert.Equal(t, 200*time.Millisecond, b.delay(1))
	assert.Equal(t, 400*time.Millisecond, b.delay(2))

	custom := backoff{retries: 5, base: time.Second, mult: 3}.withDefaults()
	assert.Equal(t, 5, custom.retries)
	assert.Equal(t, 9*time.Second, custom.delay(2))
}

func TestWait_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, wait(ctx, time.Hour), context.Canceled)
	assert.NoError(t, wait(context.Background(), time.Millisecond))
}

func TestClient_NotConnected(t *testing.T) {
	c := &Client{config: &Config{}, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	_, err := c.Consume("logs")
	assert.ErrorIs(t, err, ErrNotConnected)

	err = c.PublishWithRetry(context.Background(), []byte("{}"), "application/json")
	assert.ErrorIs(t, err, ErrNotConnected)

	assert.False(t, c.IsConnected())
	require.NoError(t, c.Close())
}
