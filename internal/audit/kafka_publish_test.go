package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/dhima/mysql-connector/internal/audit"
	"github.com/dhima/mysql-connector/internal/testutil/fakes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestPublish_WhenBrokerUnreachable_ThenErrorReturnedNotLogged(t *testing.T) {
	// Arrange
	logger := fakes.NewRecordingLogger()
	publisher := audit.NewKafkaPublisher([]string{"127.0.0.1:1"}, "audit-test", logger)
	t.Cleanup(func() { _ = publisher.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	event := audit.NewEvent(audit.EventTableDropped, "shop", time.Now())

	// Act
	err := publisher.Publish(ctx, event)

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), event.ID)
	assert.Zero(t, logger.CountLevel(zapcore.ErrorLevel))
}
