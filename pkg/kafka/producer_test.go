package kafka

import (
	"encoding/json"
	"testing"
)

func TestEncode(t *testing.T) {
	messages, err := encode([]Event{
		{Key: "iit bombay", Value: map[string]int{"rank": 4}},
		{Key: "nit trichy", Value: map[string]int{"rank": 11}},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}
	if string(messages[1].Key) != "nit trichy" {
		t.Errorf("key = %q", messages[1].Key)
	}
	var decoded map[string]int
	if err := json.Unmarshal(messages[0].Value, &decoded); err != nil || decoded["rank"] != 4 {
		t.Errorf("value = %s, err = %v", messages[0].Value, err)
	}
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	if _, err := encode([]Event{{Key: "bad", Value: make(chan int)}}); err == nil {
		t.Error("expected error for channel value")
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Type string `json:"type"`
	}
	got, err := DecodeJSON[payload]([]byte(`{"type":"rank_check"}`))
	if err != nil || got.Type != "rank_check" {
		t.Errorf("DecodeJSON = %+v, %v", got, err)
	}
	if _, err := DecodeJSON[payload]([]byte(`{`)); err == nil {
		t.Error("expected error for truncated json")
	}
}
