package p2p

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/xaichain/xaid/crypto"
	"github.com/xaichain/xaid/wire"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello world")
	if err := writeFrame(&buf, payload); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	got, err := readFrame(&buf)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected %q, got %q", payload, got)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	_ = writeFrame(&buf, make([]byte, 10))
	buf.Reset()
	oversized := make([]byte, 4)
	oversized[0] = 0xff
	oversized[1] = 0xff
	oversized[2] = 0xff
	oversized[3] = 0xff
	buf.Write(oversized)
	if _, err := readFrame(&buf); err == nil {
		t.Fatal("expected an oversized frame length to be rejected")
	}
}

func TestConnDeliversEnvelopeToRouter(t *testing.T) {
	params := testParams()
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	registry := NewRegistry(params)
	router := NewRouter(wire.CmdPing)
	serverSidePeer := registry.Add("client", "client:0")
	conn := NewConn(serverConn, serverSidePeer, router)

	cache := NewReplayCache(params)
	verify := func(env *wire.Envelope) (wire.Message, error) {
		return VerifyEnvelope(registry, cache, params, env, "client", time.Now())
	}

	done := make(chan error, 1)
	go func() { done <- conn.ReadLoop(verify) }()

	priv, _ := crypto.GeneratePrivateKey()
	env, err := SignEnvelope(priv, 1, time.Now().Unix(), &wire.MsgPing{Nonce: 42})
	if err != nil {
		t.Fatalf("SignEnvelope: %v", err)
	}
	var encoded bytes.Buffer
	if err := env.Encode(&encoded); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	go func() {
		_ = writeFrame(clientConn, encoded.Bytes())
	}()

	route, _ := router.RouteTo(wire.CmdPing)
	msg, err := route.DequeueWithTimeout(2 * time.Second)
	if err != nil {
		t.Fatalf("DequeueWithTimeout: %v", err)
	}
	ping, ok := msg.(*wire.MsgPing)
	if !ok || ping.Nonce != 42 {
		t.Fatalf("expected to receive the dispatched ping, got %#v", msg)
	}
}
