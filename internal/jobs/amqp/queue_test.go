package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/dvloznov/cellsense/internal/jobs"
	"github.com/dvloznov/cellsense/internal/jobs/inmemory"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type mockChannel struct {
	ExchangeDeclareFunc    func(name, kind string) error
	PublishWithContextFunc func(ctx context.Context, exchange, key string, msg amqp091.Publishing) error

	bound     [][3]string
	published []amqp091.Publishing
}

func (m *mockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error {
	if m.ExchangeDeclareFunc != nil {
		return m.ExchangeDeclareFunc(name, kind)
	}
	return nil
}

func (m *mockChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error) {
	return amqp091.Queue{Name: name}, nil
}

func (m *mockChannel) QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error {
	m.bound = append(m.bound, [3]string{name, key, exchange})
	return nil
}

func (m *mockChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if m.PublishWithContextFunc != nil {
		return m.PublishWithContextFunc(ctx, exchange, key, msg)
	}
	m.published = append(m.published, msg)
	return nil
}

func (m *mockChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error) {
	return make(chan amqp091.Delivery), nil
}

func (m *mockChannel) Close() error { return nil }

type mockAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (m *mockAck) Ack(multiple bool) error {
	m.acked = true
	return nil
}

func (m *mockAck) Nack(multiple, requeue bool) error {
	m.nacked = true
	m.requeue = requeue
	return nil
}

func TestNewQueue_Setup(t *testing.T) {
	ch := &mockChannel{}
	if _, err := NewQueue(ch, "cellsense", "archive", nil, zerolog.Nop()); err != nil {
		t.Fatalf("NewQueue() error = %v", err)
	}
	if len(ch.bound) != 1 || ch.bound[0] != [3]string{"archive", "archive", "cellsense"} {
		t.Errorf("unexpected bindings: %v", ch.bound)
	}

	failing := &mockChannel{ExchangeDeclareFunc: func(name, kind string) error {
		return errors.New("access refused")
	}}
	if _, err := NewQueue(failing, "cellsense", "archive", nil, zerolog.Nop()); err == nil {
		t.Error("expected setup error")
	}
}

func TestQueue_PublishArchiveDataset(t *testing.T) {
	ch := &mockChannel{}
	store := inmemory.NewStore()
	q, err := NewQueue(ch, "cellsense", "archive", store, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	job := &jobs.ArchiveDatasetJob{DatasetID: "d1", Filename: "q1.xlsx"}
	if err := q.PublishArchiveDataset(context.Background(), job); err != nil {
		t.Fatalf("PublishArchiveDataset() error = %v", err)
	}

	if len(ch.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(ch.published))
	}
	msg := ch.published[0]
	if msg.DeliveryMode != amqp091.Persistent {
		t.Error("expected persistent delivery")
	}
	if msg.MessageId != job.JobID {
		t.Errorf("MessageId = %s, want %s", msg.MessageId, job.JobID)
	}

	var decoded jobs.ArchiveDatasetJob
	if err := json.Unmarshal(msg.Body, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.DatasetID != "d1" || decoded.Status != jobs.JobStatusPending {
		t.Errorf("unexpected body: %+v", decoded)
	}

	if _, err := store.GetJob(context.Background(), job.JobID); err != nil {
		t.Errorf("job not saved: %v", err)
	}
}

func TestQueue_PublishError(t *testing.T) {
	ch := &mockChannel{PublishWithContextFunc: func(ctx context.Context, exchange, key string, msg amqp091.Publishing) error {
		return errors.New("channel closed")
	}}
	q, _ := NewQueue(ch, "x", "q", nil, zerolog.Nop())

	if err := q.PublishArchiveDataset(context.Background(), &jobs.ArchiveDatasetJob{}); err == nil {
		t.Error("expected publish error")
	}
}

func TestQueue_HandleDelivery(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		retryCount  int
		handlerErr  error
		wantAck     bool
		wantRequeue bool
		wantStatus  jobs.JobStatus
	}{
		{
			name:       "success acks",
			handlerErr: nil,
			wantAck:    true,
			wantStatus: jobs.JobStatusCompleted,
		},
		{
			name:        "failure with retries left requeues",
			handlerErr:  errors.New("upload failed"),
			wantRequeue: true,
			wantStatus:  jobs.JobStatusRetrying,
		},
		{
			name:       "failure with retries spent drops",
			retryCount: 3,
			handlerErr: errors.New("upload failed"),
			wantStatus: jobs.JobStatusFailed,
		},
		{
			name: "malformed body drops",
			body: []byte("not json"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := inmemory.NewStore()
			q, _ := NewQueue(&mockChannel{}, "x", "q", store, zerolog.Nop())

			body := tt.body
			if body == nil {
				job := &jobs.ArchiveDatasetJob{JobID: "j1", DatasetID: "d1", MaxRetries: 3, RetryCount: tt.retryCount}
				_ = store.SaveJob(context.Background(), job)
				body, _ = json.Marshal(job)
			}

			ack := &mockAck{}
			q.handleDelivery(context.Background(), body, ack, func(ctx context.Context, job jobs.Job) error {
				return tt.handlerErr
			})

			if ack.acked != tt.wantAck {
				t.Errorf("acked = %v, want %v", ack.acked, tt.wantAck)
			}
			if !tt.wantAck && !ack.nacked {
				t.Error("expected nack")
			}
			if ack.requeue != tt.wantRequeue {
				t.Errorf("requeue = %v, want %v", ack.requeue, tt.wantRequeue)
			}

			if tt.wantStatus == "" {
				return
			}
			got, err := store.GetJob(context.Background(), "j1")
			if err != nil {
				t.Fatal(err)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", got.Status, tt.wantStatus)
			}
		})
	}
}
