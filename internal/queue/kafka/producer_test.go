package kafka

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"alertscope/internal/queue"
)

func TestMessageConversion(t *testing.T) {
	msg := &queue.Message{
		Key:   []byte("default"),
		Value: []byte(`{"filters":[]}`),
		Headers: map[string]string{
			"space_id":  "default",
			"change_id": "c-1",
		},
	}

	km := toKafka(msg)

	if len(km.Headers) != 2 || km.Headers[0].Key != "change_id" {
		t.Errorf("headers = %v, want sorted by key", km.Headers)
	}
	if diff := cmp.Diff(msg, fromKafka(km)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageConversion_NoHeaders(t *testing.T) {
	km := toKafka(&queue.Message{Key: []byte("k")})

	if km.Headers != nil {
		t.Errorf("Headers = %v, want nil", km.Headers)
	}
	if got := fromKafka(km); len(got.Headers) != 0 {
		t.Errorf("Headers = %v, want empty", got.Headers)
	}
}
