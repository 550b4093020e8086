package tower

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewPublisher(t *testing.T) {
	publisher := NewPublisher(nil, "")
	if publisher == nil {
		t.Fatal("NewPublisher() returned nil")
	}
	if publisher.Prefix() != DefaultPublishPrefix {
		t.Errorf("Default prefix = %s, want %s", publisher.Prefix(), DefaultPublishPrefix)
	}
	if publisher.qos != 1 {
		t.Errorf("Default QoS = %d, want 1", publisher.qos)
	}
	if !publisher.retain {
		t.Error("Default retain should be true")
	}

	if p := NewPublisher(nil, "towers/"); p.Prefix() != "towers" {
		t.Errorf("Prefix = %s, want trailing slash trimmed", p.Prefix())
	}
}

func TestPublisher_NotConnected(t *testing.T) {
	if err := NewPublisher(nil, "").PublishEstimate(squareResult("385")); err == nil {
		t.Error("PublishEstimate() with nil client should fail")
	}

	mock := NewMockClient()
	publisher := NewPublisher(mock, "")
	if err := publisher.PublishEstimate(squareResult("385")); err == nil {
		t.Error("PublishEstimate() while disconnected should fail")
	}
	if _, ok := publisher.GetEstimate("385"); ok {
		t.Error("estimate should not be stored when nothing was published")
	}
}

func TestNewEstimateMessage(t *testing.T) {
	if _, err := NewEstimateMessage(nil); err == nil {
		t.Error("NewEstimateMessage(nil) should fail")
	}
	if _, err := NewEstimateMessage(&Result{TowerID: "385"}); err == nil {
		t.Error("NewEstimateMessage() without an estimate should fail")
	}

	msg, err := NewEstimateMessage(squareResult("385"))
	if err != nil {
		t.Fatalf("NewEstimateMessage() error = %v", err)
	}
	want := EstimateMessage{
		TowerID: "385",
		Method:  MethodPerimeter,
		Lat:     1,
		Lon:     1,
		Radius:  1.5,
		Circles: 4,
		Points:  4,
	}
	if msg.Timestamp == 0 {
		t.Error("Timestamp should be set")
	}
	msg.Timestamp = 0
	if *msg != want {
		t.Errorf("message = %+v, want %+v", *msg, want)
	}
}

func TestPublisher_PublishEstimate(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	publisher := NewPublisher(mock, "celltower")

	if err := publisher.PublishEstimate(squareResult("386")); err != nil {
		t.Fatalf("PublishEstimate() error = %v", err)
	}
	if err := publisher.PublishEstimate(squareResult("385")); err != nil {
		t.Fatalf("PublishEstimate() error = %v", err)
	}

	msgs := mock.GetPublishedMessages()
	if len(msgs) != 4 {
		t.Fatalf("published %d messages, want 4", len(msgs))
	}

	wantTopics := []string{"celltower/386/estimate", "celltower/estimates", "celltower/385/estimate", "celltower/estimates"}
	for i, msg := range msgs {
		if msg.Topic != wantTopics[i] {
			t.Errorf("message %d topic = %s, want %s", i, msg.Topic, wantTopics[i])
		}
		if msg.QoS != 1 || !msg.Retain {
			t.Errorf("message %d qos=%d retain=%v, want 1/true", i, msg.QoS, msg.Retain)
		}
	}

	var individual EstimateMessage
	if err := json.Unmarshal(msgs[2].Payload, &individual); err != nil {
		t.Fatalf("decoding estimate: %v", err)
	}
	if individual.TowerID != "385" || individual.Radius != 1.5 {
		t.Errorf("estimate = %+v", individual)
	}

	var combined struct {
		Towers    []EstimateMessage `json:"towers"`
		Timestamp int64             `json:"timestamp"`
	}
	if err := json.Unmarshal(msgs[3].Payload, &combined); err != nil {
		t.Fatalf("decoding combined estimates: %v", err)
	}
	if len(combined.Towers) != 2 {
		t.Fatalf("combined has %d towers, want 2", len(combined.Towers))
	}
	if combined.Towers[0].TowerID != "385" || combined.Towers[1].TowerID != "386" {
		t.Errorf("combined towers not sorted by ID: %+v", combined.Towers)
	}

	if est, ok := publisher.GetEstimate("386"); !ok || est.TowerID != "386" {
		t.Errorf("GetEstimate(386) = %+v, %v", est, ok)
	}
}

func TestPublisher_PublishError(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	mock.SetPublishError(errors.New("broker unavailable"))

	publisher := NewPublisher(mock, "")
	if err := publisher.PublishEstimate(squareResult("385")); err == nil {
		t.Error("PublishEstimate() should surface publish errors")
	}
}

func TestPublisher_SetQoSAndRetain(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	publisher := NewPublisher(mock, "")

	publisher.SetQoS(2)
	publisher.SetQoS(3) // ignored
	publisher.SetRetain(false)

	if err := publisher.PublishEstimate(squareResult("385")); err != nil {
		t.Fatalf("PublishEstimate() error = %v", err)
	}
	msg := mock.GetPublishedMessages()[0]
	if msg.QoS != 2 {
		t.Errorf("QoS = %d, want 2", msg.QoS)
	}
	if msg.Retain {
		t.Error("Retain should be false")
	}
}
