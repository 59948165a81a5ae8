//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"stellarbridge/internal/events"
	"stellarbridge/internal/platform/config"
	"stellarbridge/internal/platform/kafka"
	"stellarbridge/internal/platform/logger"
	"stellarbridge/pkg/testutil/containers"
)

func TestPublishedEventsReachTopic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rp := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg := config.Kafka{Brokers: rp.Brokers, Topic: "stellarbridge.test", Partitions: 1, Replication: 1}
	producer, err := kafka.New(ctx, cfg, logger.New("error"))
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, producer.Health(ctx))

	// Creating the topic twice is not an error.
	again, err := kafka.New(ctx, cfg, logger.New("error"))
	require.NoError(t, err)
	again.Close()

	pub := events.NewKafkaPublisher(producer, logger.New("error"))
	require.NoError(t, pub.Publish(ctx, events.Event{
		Type:     events.PaymentConfirmed,
		TenantID: "tenant-a",
		Data:     map[string]string{"reference": "abc"},
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.NotEmpty(t, records)
	require.Equal(t, "tenant-a", string(records[0].Key))
	require.Contains(t, string(records[0].Value), `"payment.confirmed"`)
}
