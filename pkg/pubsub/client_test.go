package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/rfqmarket-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	assert.Equal(t, "projects/rfq-prod/subscriptions/invoice-issuer", resourceName("rfq-prod", kindSubscription, " invoice-issuer "))
	assert.Equal(t, "projects/other/subscriptions/x", resourceName("rfq-prod", kindSubscription, "projects/other/subscriptions/x"))
	assert.Equal(t, "projects/rfq-prod/topics/rfq-domain-events", resourceName("rfq-prod", kindTopic, "rfq-domain-events"))
	assert.Empty(t, resourceName("rfq-prod", kindTopic, "  "))
	assert.Empty(t, resourceName("", kindTopic, "rfq-domain-events"))
}

func TestLookupError(t *testing.T) {
	notFound := lookupError(kindTopic, "rfq-domain-events", status.Error(codes.NotFound, "gone"))
	assert.EqualError(t, notFound, `pubsub topics "rfq-domain-events" does not exist`)

	cause := status.Error(codes.PermissionDenied, "denied")
	denied := lookupError(kindSubscription, "invoice-issuer", cause)
	assert.True(t, errors.Is(denied, cause))
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{DomainTopic: "t"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "rfq-prod"}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, errTopicRequired)
}

func TestNilClient(t *testing.T) {
	var c *Client
	assert.Nil(t, c.DomainPublisher())
	assert.Nil(t, c.DomainSubscription())
	assert.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	assert.NoError(t, c.Close())
}
