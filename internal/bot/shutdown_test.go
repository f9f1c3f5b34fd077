// internal/bot/shutdown_test.go
package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestShutdownHandler_ReverseOrder(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t), time.Second)
	var order []string
	for _, name := range []string{"store", "listener", "scheduler"} {
		sh.AddFunc(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	assert.NoError(t, sh.Shutdown(context.Background()))
	assert.Equal(t, []string{"scheduler", "listener", "store"}, order)

	// Services are closed once.
	assert.NoError(t, sh.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestShutdownHandler_CollectsErrors(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t), time.Second)
	boom := errors.New("boom")
	closed := false
	sh.AddFunc("first", func() error { closed = true; return nil })
	sh.AddFunc("second", func() error { return boom })

	err := sh.Shutdown(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, closed)
}

func TestShutdownHandler_Timeout(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t), 20*time.Millisecond)
	release := make(chan struct{})
	defer close(release)
	sh.AddFunc("stuck", func() error { <-release; return nil })

	err := sh.Shutdown(context.Background())
	assert.ErrorContains(t, err, "stuck: shutdown timeout")
}
