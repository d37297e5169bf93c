package p2p

import (
	"testing"
	"time"

	"github.com/xaichain/xaid/crypto"
	"github.com/xaichain/xaid/netparams"
	"github.com/xaichain/xaid/wire"
)

func testParams() *netparams.Params {
	return &netparams.Params{
		MaxMsgRate:        100,
		MaxBWIn:           1 << 20,
		ReplayCacheMax:    1024,
		NonceTTL:          time.Minute,
		ClockSkew:         time.Hour,
		BanThreshold:      50,
		BanDuration:       time.Minute,
		PeerFanout:        2,
		PeerSendQueueSize: 8,
		PeerRPCTimeout:    time.Second,
	}
}

func signedEnvelope(t *testing.T, priv *crypto.PrivateKey, nonce uint64, now time.Time) *wire.Envelope {
	t.Helper()
	env, err := SignEnvelope(priv, nonce, now.Unix(), &wire.MsgPing{Nonce: nonce})
	if err != nil {
		t.Fatalf("SignEnvelope: %v", err)
	}
	return env
}

func TestVerifyEnvelopeAcceptsValidEnvelope(t *testing.T) {
	params := testParams()
	registry := NewRegistry(params)
	cache := NewReplayCache(params)
	priv, _ := crypto.GeneratePrivateKey()
	now := time.Unix(2_000_000_000, 0)

	env := signedEnvelope(t, priv, 1, now)
	msg, err := VerifyEnvelope(registry, cache, params, env, "peerA", now)
	if err != nil {
		t.Fatalf("VerifyEnvelope: %v", err)
	}
	if msg.Command() != wire.CmdPing {
		t.Fatalf("expected a ping message, got %s", msg.Command())
	}
}

func TestVerifyEnvelopeRejectsBadSignature(t *testing.T) {
	params := testParams()
	registry := NewRegistry(params)
	cache := NewReplayCache(params)
	priv, _ := crypto.GeneratePrivateKey()
	now := time.Unix(2_000_000_000, 0)

	env := signedEnvelope(t, priv, 1, now)
	env.Signature[0] ^= 0xff

	if _, err := VerifyEnvelope(registry, cache, params, env, "peerA", now); err == nil {
		t.Fatal("expected a tampered signature to be rejected")
	}
}

func TestVerifyEnvelopeRejectsReplay(t *testing.T) {
	params := testParams()
	registry := NewRegistry(params)
	cache := NewReplayCache(params)
	priv, _ := crypto.GeneratePrivateKey()
	now := time.Unix(2_000_000_000, 0)

	env := signedEnvelope(t, priv, 1, now)
	if _, err := VerifyEnvelope(registry, cache, params, env, "peerA", now); err != nil {
		t.Fatalf("first delivery should succeed: %v", err)
	}

	env2 := signedEnvelope(t, priv, 1, now) // same nonce, re-signed identically
	if _, err := VerifyEnvelope(registry, cache, params, env2, "peerA", now); err == nil {
		t.Fatal("expected a replayed (sender, nonce) pair to be rejected")
	}
}

func TestVerifyEnvelopeRejectsStaleClock(t *testing.T) {
	params := testParams()
	params.ClockSkew = time.Minute
	registry := NewRegistry(params)
	cache := NewReplayCache(params)
	priv, _ := crypto.GeneratePrivateKey()
	now := time.Unix(2_000_000_000, 0)

	env := signedEnvelope(t, priv, 1, now.Add(-time.Hour))
	if _, err := VerifyEnvelope(registry, cache, params, env, "peerA", now); err == nil {
		t.Fatal("expected an envelope far outside the clock-skew window to be rejected")
	}
}

func TestVerifyEnvelopeEnforcesRateLimit(t *testing.T) {
	params := testParams()
	params.MaxMsgRate = 1
	registry := NewRegistry(params)
	cache := NewReplayCache(params)
	priv, _ := crypto.GeneratePrivateKey()
	now := time.Unix(2_000_000_000, 0)

	rejected := false
	for i := uint64(0); i < 5; i++ {
		env := signedEnvelope(t, priv, i, now)
		if _, err := VerifyEnvelope(registry, cache, params, env, "peerA", now); err != nil {
			rejected = true
			break
		}
	}
	if !rejected {
		t.Fatal("expected the rate limiter to reject a burst exceeding MaxMsgRate")
	}
}

func TestPenalizeBansPeerBelowThreshold(t *testing.T) {
	params := testParams()
	registry := NewRegistry(params)
	peer := registry.Add("peerA", "1.2.3.4:9000")

	for i := 0; i < 10; i++ {
		peer.Penalize(10, params.BanThreshold, params.BanDuration)
	}
	if peer.Trust() != TrustBanned {
		t.Fatal("expected repeated penalties to ban the peer")
	}
	if !registry.IsBanned("peerA") {
		t.Fatal("expected the registry to report the peer as banned")
	}
}

func TestReplayCacheEvictsOldestPastCapacity(t *testing.T) {
	params := testParams()
	params.ReplayCacheMax = 2
	params.NonceTTL = time.Hour
	cache := NewReplayCache(params)
	now := time.Unix(2_000_000_000, 0)

	var sender crypto.PublicKey
	cache.CheckAndRecord(sender, 1, now)
	cache.CheckAndRecord(sender, 2, now)
	cache.CheckAndRecord(sender, 3, now) // evicts nonce 1

	if cache.CheckAndRecord(sender, 1, now) {
		t.Fatal("nonce 1 should have been evicted and so treated as unseen")
	}
	// Re-recording nonce 1 evicted nonce 2 in turn; nonce 3 is still present.
	if !cache.CheckAndRecord(sender, 3, now) {
		t.Fatal("nonce 3 is still within capacity and should be detected as a replay")
	}
}
