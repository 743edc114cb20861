package rabbitmq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/GoArmGo/FaceShare/internal/messaging/payloads"
)

// fakeAcknowledger records what happened to a delivery.
type fakeAcknowledger struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func TestHandleDelivery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name        string
		body        string
		redelivered bool
		handlerErr  error
		wantCalled  bool
		wantAck     bool
		wantNack    bool
		wantRequeue bool
	}{
		{"success", `{"external_image_id":"a.jpg","reason":"register_faces"}`, false, nil, true, true, false, false},
		{"redelivered success", `{"external_image_id":"a.jpg"}`, true, nil, true, true, false, false},
		{"handler error requeues", `{"external_image_id":"a.jpg"}`, false, errors.New("throttled"), true, false, true, true},
		{"redelivered failure is not requeued", `{"external_image_id":"a.jpg"}`, true, errors.New("invalid image"), true, false, true, false},
		{"malformed json dropped", `{not json`, false, nil, false, false, true, false},
		{"empty id dropped", `{"reason":"x"}`, false, nil, false, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			msg := amqp.Delivery{Acknowledger: ack, Body: []byte(tt.body), Redelivered: tt.redelivered}

			var got payloads.PhotoRepairPayload
			called := false
			handler := func(ctx context.Context, p payloads.PhotoRepairPayload) error {
				called = true
				got = p
				return tt.handlerErr
			}

			handleDelivery(context.Background(), msg, handler, logger)

			if called != tt.wantCalled {
				t.Fatalf("handler called = %v, want %v", called, tt.wantCalled)
			}
			if called && got.ExternalImageID != "a.jpg" {
				t.Errorf("unexpected payload %+v", got)
			}
			if ack.acked != tt.wantAck || ack.nacked != tt.wantNack || ack.requeue != tt.wantRequeue {
				t.Errorf("ack=%v nack=%v requeue=%v, want %v/%v/%v",
					ack.acked, ack.nacked, ack.requeue, tt.wantAck, tt.wantNack, tt.wantRequeue)
			}
		})
	}
}
