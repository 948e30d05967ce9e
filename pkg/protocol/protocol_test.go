package protocol

import (
	"errors"
	"testing"
)

func TestParse_SingleMessage(t *testing.T) {
	msgs, err := Parse([]byte(`{"msg":"ping"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Type != "ping" {
		t.Fatalf("want one ping message, got %+v", msgs)
	}
	// The full object must survive for later field decoding.
	var body struct {
		Msg string `json:"msg"`
	}
	if err := msgs[0].Decode(&body); err != nil || body.Msg != "ping" {
		t.Fatalf("decode of single message payload failed: %v %+v", err, body)
	}
}

func TestParse_BatchKeepsOrder(t *testing.T) {
	msgs, err := Parse([]byte(`{"msgs":[{"msg":"ping"},{"msg":"lobby_clear"},{"msg":"lobby_complete"}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"ping", "lobby_clear", "lobby_complete"}
	if len(msgs) != len(want) {
		t.Fatalf("want %d messages, got %d", len(want), len(msgs))
	}
	for i, typ := range want {
		if msgs[i].Type != typ {
			t.Fatalf("message %d: want %q, got %q", i, typ, msgs[i].Type)
		}
	}
}

func TestParse_EmptyBatch(t *testing.T) {
	msgs, err := Parse([]byte(`{"msgs":[]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("want no messages, got %+v", msgs)
	}
}

func TestParse_MissingEnvelopeIsProtocolError(t *testing.T) {
	for _, raw := range []string{`{}`, `{"data":1}`, `[1,2,3]`, `"hello"`} {
		_, err := Parse([]byte(raw))
		var perr *Error
		if !errors.As(err, &perr) {
			t.Fatalf("Parse(%s): want *Error, got %v", raw, err)
		}
	}
}

func TestParse_BatchElementWithoutType(t *testing.T) {
	_, err := Parse([]byte(`{"msgs":[{"msg":"ping"},{"content":"x"}]}`))
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("want *Error for untyped batch element, got %v", err)
	}
}

func TestLogin_RememberMeOnlyForV2(t *testing.T) {
	if Login("n", "p", false).RememberMe != nil {
		t.Fatal("v1 login must not carry rememberme")
	}
	v2 := Login("n", "p", true)
	if v2.RememberMe == nil || *v2.RememberMe {
		t.Fatalf("v2 login must carry rememberme=false, got %+v", v2.RememberMe)
	}
}
