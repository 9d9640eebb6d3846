package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shashiranjanraj/bunkar/pkg/logger"
)

const (
	mongoQueueSize = 1024
	mongoBatchSize = 50
	mongoDrainTick = 2 * time.Second
	collectionName = "order_audit"
)

// Mongo writes entries to the order_audit collection in batches.
type Mongo struct {
	client *mongo.Client
	col    *mongo.Collection
	queue  chan Entry
	done   chan struct{}
	exited chan struct{}
}

// NewMongo connects to uri, ensures the (order_id, time) index and starts
// the background writer. Call Close to flush.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).
		SetConnectTimeout(5*time.Second).
		SetServerSelectionTimeout(5*time.Second).
		SetMaxPoolSize(10))
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("audit: ping: %w", err)
	}

	col := client.Database(database).Collection(collectionName)
	if _, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "time", Value: 1}},
	}); err != nil {
		logger.Warn("audit: create index", "error", err)
	}

	m := &Mongo{
		client: client,
		col:    col,
		queue:  make(chan Entry, mongoQueueSize),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go m.drainLoop()
	return m, nil
}

// Record enqueues e without blocking. A full queue drops the entry.
func (m *Mongo) Record(_ context.Context, e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	select {
	case m.queue <- e:
		return nil
	default:
		return fmt.Errorf("audit: queue full, dropped %s for order %s", e.Action, e.OrderID)
	}
}

// Trail returns the entries of one order, oldest first.
func (m *Mongo) Trail(ctx context.Context, orderID string) ([]Entry, error) {
	cur, err := m.col.Find(ctx, bson.M{"order_id": orderID},
		options.Find().SetSort(bson.D{{Key: "time", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("audit: find: %w", err)
	}
	var out []Entry
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("audit: decode: %w", err)
	}
	return out, nil
}

// Close flushes queued entries and disconnects.
func (m *Mongo) Close(ctx context.Context) error {
	close(m.done)
	select {
	case <-m.exited:
	case <-ctx.Done():
	}
	return m.client.Disconnect(ctx)
}

func (m *Mongo) drainLoop() {
	defer close(m.exited)
	ticker := time.NewTicker(mongoDrainTick)
	defer ticker.Stop()

	batch := make([]any, 0, mongoBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := m.col.InsertMany(ctx, batch); err != nil {
			logger.Error("audit: insert batch", "size", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-m.queue:
			batch = append(batch, e)
			if len(batch) >= mongoBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-m.done:
			for len(m.queue) > 0 {
				batch = append(batch, <-m.queue)
			}
			flush()
			return
		}
	}
}
