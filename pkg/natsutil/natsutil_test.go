package natsutil

import (
	"context"
	"testing"

	"github.com/nats-io/nats.go"
)

func TestHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{Subject: "test"}
	c := (*headerCarrier)(msg)

	if c.Get("traceparent") != "" {
		t.Fatal("empty carrier should return empty string")
	}
	if c.Keys() != nil {
		t.Fatal("empty carrier should have no keys")
	}

	c.Set("traceparent", "00-abc-def-01")
	if got := c.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("Get = %q", got)
	}
	if len(c.Keys()) != 1 {
		t.Fatalf("Keys = %v", c.Keys())
	}
	if msg.Header.Get("traceparent") == "" {
		t.Fatal("header should be visible on the underlying message")
	}
}

func TestNewMsgEncodesPayload(t *testing.T) {
	type event struct {
		Path string `json:"path"`
	}

	msg, err := newMsg(context.Background(), "docs", event{Path: "a.md"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Subject != "docs" {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if string(msg.Data) != `{"path":"a.md"}` {
		t.Fatalf("data = %s", msg.Data)
	}
}

func TestNewMsgRejectsUnencodable(t *testing.T) {
	if _, err := newMsg(context.Background(), "docs", func() {}); err == nil {
		t.Fatal("expected marshal error")
	}
}
