package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"feedrelay/pkg/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPublishing(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	item := models.CollectedItem{ID: "k3x9", Content: "<div>post</div>", DiscoveryIndex: 4}

	pub, err := buildPublishing("tok", "u1", item, now)
	require.NoError(t, err)

	assert.Equal(t, uint8(amqp.Persistent), pub.DeliveryMode)
	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, "k3x9", pub.MessageId)
	assert.Equal(t, "Bearer tok", pub.Headers["authorization"])

	var body ItemMessage
	require.NoError(t, json.Unmarshal(pub.Body, &body))
	assert.Equal(t, "u1", body.UserID)
	assert.Equal(t, item.Content, body.Item.Content)
	assert.True(t, now.Equal(body.Timestamp))
}
