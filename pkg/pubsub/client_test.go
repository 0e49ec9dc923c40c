package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/orderflow-backend/pkg/config"
)

func TestCompactTrimsAndDeduplicates(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, compact(" a ", "", "b", "a"))
	require.Empty(t, compact("  "))
}

func TestAnalyticsResourcesListsSubscription(t *testing.T) {
	res := AnalyticsResources(config.PubSubConfig{OrdersTopic: "orders", AnalyticsSubscription: " analytics "})
	require.Empty(t, res.Topics)
	require.Equal(t, []string{"analytics"}, res.Subscriptions)
	require.True(t, AnalyticsResources(config.PubSubConfig{}).empty())

	res = NotificationResources(config.PubSubConfig{AnalyticsSubscription: "analytics", NotificationSubscription: "inbox"})
	require.Equal(t, []string{"inbox"}, res.Subscriptions)
}

func TestNewClientValidatesInput(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, Resources{Topics: []string{"t"}}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "proj"}, config.PubSubConfig{}, Resources{Topics: []string{" "}}, nil)
	require.ErrorIs(t, err, errNoResources)
}

func TestResourceNames(t *testing.T) {
	c := &Client{projectID: "proj"}
	require.Equal(t, "projects/proj/topics/of-order-events", c.topicResourceName("of-order-events"))
	require.Equal(t, "projects/other/topics/x", c.topicResourceName("projects/other/topics/x"))
	require.Equal(t, "projects/proj/subscriptions/sub", c.subscriptionResourceName(" sub "))
	require.Empty(t, c.subscriptionResourceName("  "))
	require.Empty(t, (&Client{}).topicResourceName("t"))
}

func TestDescribeLookup(t *testing.T) {
	require.NoError(t, describeLookup("topic", "t", nil))
	require.EqualError(t, describeLookup("topic", "t", status.Error(codes.NotFound, "gone")), `topic "t" does not exist`)
	require.ErrorContains(t, describeLookup("subscription", "s", status.Error(codes.PermissionDenied, "no")), "not accessible")

	cause := errors.New("dial failed")
	require.ErrorIs(t, describeLookup("topic", "t", cause), cause)
}

func TestClientOptionsPrioritizesJSON(t *testing.T) {
	require.Len(t, clientOptions(config.GCPConfig{CredentialsJSON: "{}", ApplicationCredentials: "/tmp/creds"}), 1)
	require.Len(t, clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/creds"}), 1)
	require.Empty(t, clientOptions(config.GCPConfig{}))
}

func TestNilClientHandles(t *testing.T) {
	var c *Client
	require.Nil(t, c.Publisher("topic"))
	require.Nil(t, c.AnalyticsSubscription())
	require.Nil(t, c.NotificationSubscription())
	require.ErrorIs(t, c.Ping(context.Background()), errClientNotInitialized)
	require.NoError(t, c.Close())
}
