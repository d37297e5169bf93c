package p2p

import (
	"bytes"
	"container/list"
	"time"

	"github.com/xaichain/xaid/crypto"
	"github.com/xaichain/xaid/netparams"
	"github.com/xaichain/xaid/wire"
	"github.com/xaichain/xaid/xaierr"
)

func encodeMessage(msg wire.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.EncodeMessage(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const (
	CodeBadSignature xaierr.Code = "bad_signature"
	CodeReplayed     xaierr.Code = "replayed_envelope"
	CodeStaleClock   xaierr.Code = "stale_envelope_timestamp"
	CodeRateLimited  xaierr.Code = "rate_limited"
	CodeBanned       xaierr.Code = "peer_banned"
)

// replayKey identifies one (sender, nonce) pair for duplicate detection.
type replayKey struct {
	sender crypto.PublicKey
	nonce  uint64
}

// ReplayCache rejects an envelope whose (sender_pubkey, nonce) pair was
// already seen within NonceTTL, bounded by ReplayCacheMax with
// oldest-first eviction (specification §4.10).
type ReplayCache struct {
	ttl     time.Duration
	maxSize int

	seen  map[replayKey]*list.Element
	order *list.List // front = oldest
}

type replayEntry struct {
	key  replayKey
	seen time.Time
}

// NewReplayCache returns an empty cache bound to params.
func NewReplayCache(params *netparams.Params) *ReplayCache {
	return &ReplayCache{
		ttl:     params.NonceTTL,
		maxSize: params.ReplayCacheMax,
		seen:    make(map[replayKey]*list.Element),
		order:   list.New(),
	}
}

// CheckAndRecord reports whether (sender, nonce) was already recorded
// within the replay window; if not, it records it and returns false.
func (c *ReplayCache) CheckAndRecord(sender crypto.PublicKey, nonce uint64, now time.Time) (replayed bool) {
	c.evictExpired(now)

	key := replayKey{sender: sender, nonce: nonce}
	if _, ok := c.seen[key]; ok {
		return true
	}

	elem := c.order.PushBack(&replayEntry{key: key, seen: now})
	c.seen[key] = elem

	for c.maxSize > 0 && c.order.Len() > c.maxSize {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.seen, oldest.Value.(*replayEntry).key)
	}
	return false
}

func (c *ReplayCache) evictExpired(now time.Time) {
	if c.ttl <= 0 {
		return
	}
	for {
		front := c.order.Front()
		if front == nil {
			return
		}
		entry := front.Value.(*replayEntry)
		if now.Sub(entry.seen) <= c.ttl {
			return
		}
		c.order.Remove(front)
		delete(c.seen, entry.key)
	}
}

// VerifyEnvelope checks an inbound envelope's signature, replay status,
// and clock skew, and consumes one unit of the sender's rate-limit
// budget, returning the decoded Message on success (specification
// §4.10: "every message is wrapped in a signed envelope ... verified
// before any further processing").
func VerifyEnvelope(registry *Registry, cache *ReplayCache, params *netparams.Params, env *wire.Envelope, peerID string, now time.Time) (wire.Message, error) {
	peer, ok := registry.Get(peerID)
	if !ok {
		peer = registry.Add(peerID, "")
	}
	if peer.Trust() == TrustBanned {
		return nil, xaierr.New(xaierr.KindNetwork, CodeBanned, "peer %s is banned", peerID)
	}

	if !peer.AllowMessage(len(env.Payload)) {
		peer.Penalize(5, params.BanThreshold, params.BanDuration)
		return nil, xaierr.New(xaierr.KindRateLimit, CodeRateLimited, "peer %s exceeded its message or bandwidth budget", peerID)
	}

	skew := int64(params.ClockSkew.Seconds())
	if env.Timestamp > now.Unix()+skew || env.Timestamp < now.Unix()-skew {
		peer.Penalize(10, params.BanThreshold, params.BanDuration)
		return nil, xaierr.New(xaierr.KindValidation, CodeStaleClock, "envelope timestamp %d outside clock-skew window", env.Timestamp)
	}

	if !crypto.Verify(crypto.PublicKey(env.SenderPubKey), env.SignedDigest(), env.Signature) {
		peer.Penalize(25, params.BanThreshold, params.BanDuration)
		return nil, xaierr.New(xaierr.KindValidation, CodeBadSignature, "envelope signature does not verify under the claimed sender key")
	}

	if cache.CheckAndRecord(crypto.PublicKey(env.SenderPubKey), env.Nonce, now) {
		peer.Penalize(15, params.BanThreshold, params.BanDuration)
		return nil, xaierr.New(xaierr.KindValidation, CodeReplayed, "envelope (sender, nonce) already seen within the replay window")
	}

	peer.Touch()
	msg, err := env.Message()
	if err != nil {
		peer.Penalize(10, params.BanThreshold, params.BanDuration)
		return nil, xaierr.Wrap(err, xaierr.KindValidation, CodeBadSignature, "decoding envelope payload")
	}
	return msg, nil
}

// SignEnvelope builds and signs an outbound envelope carrying msg.
func SignEnvelope(priv *crypto.PrivateKey, nonce uint64, timestamp int64, msg wire.Message) (*wire.Envelope, error) {
	payload, err := encodeMessage(msg)
	if err != nil {
		return nil, err
	}
	env := &wire.Envelope{
		SenderPubKey: priv.PubKey(),
		Nonce:        nonce,
		Timestamp:    timestamp,
		Payload:      payload,
	}
	sig, err := crypto.Sign(priv, env.SignedDigest())
	if err != nil {
		return nil, err
	}
	env.Signature = sig
	return env, nil
}
