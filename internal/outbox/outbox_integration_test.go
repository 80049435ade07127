//go:build integration

package outbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"invoicevault/internal/invoice/store"
	"invoicevault/internal/outbox"
	txcontext "invoicevault/pkg/platform/tx"
	"invoicevault/pkg/testutil/containers"
)

const topic = "invoices.registered.test"

type OutboxSuite struct {
	suite.Suite
	pg       *containers.PostgresContainer
	brokers  []string
	producer *kgo.Client
	store    *outbox.PostgresStore
}

func TestOutboxSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OutboxSuite))
}

func (s *OutboxSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.pg = mgr.GetPostgres(s.T())
	s.brokers = mgr.GetRedpanda(s.T()).Brokers
	s.Require().NoError(store.EnsureSchema(context.Background(), s.pg.DB))
	s.store = outbox.NewPostgres(s.pg.DB)

	producer, err := outbox.NewKafkaClient(s.brokers)
	s.Require().NoError(err)
	s.producer = producer
	s.Require().NoError(outbox.EnsureTopic(context.Background(), producer, topic, 1, 1))
}

func (s *OutboxSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *OutboxSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "outbox"))
}

func (s *OutboxSuite) TestWorkerDeliversToKafka() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msg, err := outbox.NewMessage(topic, "AAAAAAAA-1111-2222-3333-444444444444",
		map[string]string{"uuid": "AAAAAAAA-1111-2222-3333-444444444444"}, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(ctx, msg))

	w := outbox.NewWorker(s.store, txcontext.NewSQLRunner(s.pg.DB), outbox.NewKafkaPublisher(s.producer))
	n, err := w.ProcessBatch(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	pending, err := s.store.Pending(ctx)
	s.Require().NoError(err)
	s.Zero(pending)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())
	records := fetches.Records()
	s.Require().NotEmpty(records)
	s.Equal("AAAAAAAA-1111-2222-3333-444444444444", string(records[0].Key))
	s.JSONEq(`{"uuid":"AAAAAAAA-1111-2222-3333-444444444444"}`, string(records[0].Value))
}

func (s *OutboxSuite) TestClaimedRowsAreSkippedByConcurrentWorkers() {
	ctx := context.Background()
	msg, err := outbox.NewMessage(topic, "k", map[string]int{"n": 1}, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(ctx, msg))

	runner := txcontext.NewSQLRunner(s.pg.DB)
	err = runner.RunInTx(ctx, func(txCtx context.Context) error {
		claimed, err := s.store.FetchUnpublished(txCtx, 10)
		s.Require().NoError(err)
		s.Len(claimed, 1)

		other, err := s.store.FetchUnpublished(ctx, 10)
		s.Require().NoError(err)
		s.Empty(other, "locked rows are skipped outside the claiming transaction")
		return nil
	})
	s.Require().NoError(err)
}
