package mq

import (
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestNewPublishing(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	msg, err := newPublishing(map[string]string{"bookingId": "b1"}, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.ContentType != "application/json" {
		t.Errorf("unexpected content type %s", msg.ContentType)
	}
	if msg.DeliveryMode != amqp.Persistent {
		t.Error("events must be persistent")
	}
	if msg.MessageId == "" {
		t.Error("expected a message id")
	}
	if !msg.Timestamp.Equal(at) || msg.Timestamp.Location() != time.UTC {
		t.Errorf("expected UTC timestamp, got %v", msg.Timestamp)
	}

	var body map[string]string
	if err := json.Unmarshal(msg.Body, &body); err != nil || body["bookingId"] != "b1" {
		t.Errorf("unexpected body %s", msg.Body)
	}
}

func TestNewPublishingUniqueIDs(t *testing.T) {
	a, _ := newPublishing(1, time.Now())
	b, _ := newPublishing(1, time.Now())
	if a.MessageId == b.MessageId {
		t.Error("message ids must be unique")
	}
}

func TestNewPublishingRejectsUnencodable(t *testing.T) {
	if _, err := newPublishing(make(chan int), time.Now()); err == nil {
		t.Error("expected encode error")
	}
}
