package nats

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

func TestStreamConfig_Defaults(t *testing.T) {
	sc := streamConfig(StreamConfig{Name: "S", Subjects: []string{"s.>"}})

	if sc.MaxMsgs != 100000 {
		t.Errorf("MaxMsgs = %d, want 100000", sc.MaxMsgs)
	}
	if sc.MaxBytes != 100*1024*1024 {
		t.Errorf("MaxBytes = %d, want 100MB", sc.MaxBytes)
	}
	if sc.MaxAge != 7*24*time.Hour {
		t.Errorf("MaxAge = %v, want 7 days", sc.MaxAge)
	}
	if sc.Replicas != 1 {
		t.Errorf("Replicas = %d, want 1", sc.Replicas)
	}
	if sc.Retention != jetstream.LimitsPolicy {
		t.Errorf("Retention = %v, want limits", sc.Retention)
	}
}

func TestStreamConfig_KeepsExplicitLimits(t *testing.T) {
	sc := streamConfig(StreamConfig{
		Name:     "S",
		MaxMsgs:  10,
		MaxBytes: 2048,
		MaxAge:   time.Hour,
		Replicas: 3,
	})

	if sc.MaxMsgs != 10 || sc.MaxBytes != 2048 || sc.MaxAge != time.Hour || sc.Replicas != 3 {
		t.Errorf("explicit limits overwritten: %+v", sc)
	}
}

func TestClient_NilState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should return false for nil connection")
	}
	if client.JetStream() != nil {
		t.Error("JetStream() should return nil")
	}
	if client.Conn() != nil {
		t.Error("Conn() should return nil")
	}
	if err := client.HealthCheck(); err == nil {
		t.Error("HealthCheck() should return error for nil connection")
	}
	if _, err := client.Publish(context.Background(), "codehealth.analysis.good", nil); err == nil {
		t.Error("Publish() should fail without a connection")
	}
	if _, err := client.CreateStream(context.Background(), DefaultStreamConfig()); err == nil {
		t.Error("CreateStream() should fail without a connection")
	}

	client.Close()
	client.Close()
}
