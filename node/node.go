package node

import (
	"context"
	"fmt"
	"math/big"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/xaichain/xaid/chain"
	"github.com/xaichain/xaid/crypto"
	"github.com/xaichain/xaid/logger"
	"github.com/xaichain/xaid/mempool"
	"github.com/xaichain/xaid/miner"
	"github.com/xaichain/xaid/netparams"
	"github.com/xaichain/xaid/p2p"
	"github.com/xaichain/xaid/storage"
	"github.com/xaichain/xaid/sync"
	"github.com/xaichain/xaid/util/panics"
	"github.com/xaichain/xaid/validator"
	"github.com/xaichain/xaid/wire"
)

// protocolVersion identifies the wire message vocabulary this node
// speaks; peers announcing a different value are still served (the
// vocabulary has not changed yet) but the field is threaded through so
// a future breaking change has somewhere to be negotiated.
const protocolVersion = 1

var srvrLog, _ = logger.Get(logger.SubsystemTags.SRVR)

// spawn runs f in a new goroutine with a panic recovered and logged
// instead of taking down the whole process — every long-running
// goroutine node starts (accept loop, one per connection, mining
// loop) goes through it.
var spawn = panics.GoroutineWrapperFunc(srvrLog)

// Config gathers everything New needs beyond the active network
// parameters: the data directory, optional listen address, optional
// miner address and worker count (specification §6 Environment).
type Config struct {
	DataDir         string
	ListenAddr      string   // empty disables inbound P2P listening
	AddPeers        []string // outbound peers to dial on startup
	MinerAddress    string   // empty disables mining
	MinerWorkers    int
	CheckpointEvery uint64
}

// Node is the wrapper for every running service, mirroring the
// teacher's single-struct-of-services orchestrator: start/stop are
// idempotent via atomic guards, and every subsystem is reachable
// through a plain field for the CLI surface to call into directly.
type Node struct {
	cfg    Config
	params *netparams.Params

	Store     *storage.Store
	Manager   *chain.Manager
	Mempool   *mempool.Pool
	Validator *validator.Validator
	Registry  *p2p.Registry
	Gossiper  *p2p.Gossiper
	Replay    *p2p.ReplayCache
	Coord     *sync.Coordinator
	MinerPool *miner.Pool
	Events    *EventBus

	listener *p2p.Listener
	cancel   context.CancelFunc

	identity     *crypto.PrivateKey
	nonceCounter uint64

	started, shutdown int32
}

// New builds every subsystem and opens (or initializes) the on-disk
// store, but does not start accepting connections or mining — call
// Start for that.
func New(params *netparams.Params, cfg Config) (*Node, error) {
	if cfg.CheckpointEvery == 0 {
		cfg.CheckpointEvery = 1000
	}

	store, err := storage.Open(cfg.DataDir, params.CoinbaseMaturity, cfg.CheckpointEvery)
	if err != nil {
		return nil, errors.Wrap(err, "opening block store")
	}

	v := validator.New(params)
	manager, err := chain.New(params, store, v)
	if err != nil {
		return nil, errors.Wrap(err, "initializing chain manager")
	}

	pool := mempool.New(params.MempoolMaxBytes, params.MinRelayFee, params.RBFBumpPercent, params.MempoolTTL)
	registry := p2p.NewRegistry(params)

	identity, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "generating node identity")
	}

	n := &Node{
		cfg:       cfg,
		params:    params,
		Store:     store,
		Manager:   manager,
		Mempool:   pool,
		Validator: v,
		Registry:  registry,
		Gossiper:  p2p.NewGossiper(params, registry),
		Replay:    p2p.NewReplayCache(params),
		Coord:     sync.NewCoordinator(manager, params),
		Events:    NewEventBus(),
		identity:  identity,
	}

	if cfg.MinerAddress != "" {
		workers := cfg.MinerWorkers
		if workers <= 0 {
			workers = 1
		}
		n.MinerPool = miner.NewPool(params, workers)
	}

	manager.SetCommitHooks(n.onBlockCommitted, n.onBlockReverted)

	return n, nil
}

// onBlockCommitted evicts any pending transaction that conflicts with one
// just committed to the active chain (specification §4.5: conflict
// eviction on block commit). Registered as Manager's commit hook so it
// fires on every tip change, not just a deep reorg.
func (n *Node) onBlockCommitted(block *wire.Block) {
	var spent []wire.Outpoint
	for i, tx := range block.Transactions {
		if i == 0 {
			continue // coinbase carries no inputs
		}
		spent = append(spent, tx.Inputs...)
	}
	n.Mempool.RemoveConflicting(spent)
}

// onBlockReverted re-admits a reverted block's transactions into the
// mempool on a best-effort basis (specification §2 scenario D: a reorg
// returns the losing branch's transactions to the mempool). A
// transaction that no longer validates against the new active chain
// (already mined on the winning branch, or now double-spent) is silently
// dropped rather than treated as an error.
func (n *Node) onBlockReverted(block *wire.Block) {
	for i, tx := range block.Transactions {
		if i == 0 {
			continue // coinbase is never resubmitted
		}
		_ = n.Mempool.Accept(tx, n.params.MaxTxBytes)
	}
}

// Start launches the node's background services: the accept loop (if
// ListenAddr is set) and the mining loop (if MinerAddress is set).
func (n *Node) Start() error {
	if !atomic.CompareAndSwapInt32(&n.started, 0, 1) {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	if n.cfg.ListenAddr != "" {
		ln, err := p2p.Listen(n.cfg.ListenAddr)
		if err != nil {
			return err
		}
		n.listener = ln
		spawn(func() { n.acceptLoop(ctx) })
	}

	if n.MinerPool != nil {
		spawn(func() { n.miningLoop(ctx) })
	}

	for _, endpoint := range n.cfg.AddPeers {
		endpoint := endpoint
		spawn(func() { _ = n.ConnectPeer(ctx, endpoint) })
	}

	return nil
}

// ConnectPeer dials endpoint and serves the resulting connection exactly
// like an inbound one once established, so outbound and inbound peers
// share the same registration, verification, and teardown path.
func (n *Node) ConnectPeer(ctx context.Context, endpoint string) error {
	conn, err := p2p.Dial(endpoint)
	if err != nil {
		return errors.Wrapf(err, "dialing peer %s", endpoint)
	}
	n.serveConn(ctx, conn)
	return nil
}

// Stop gracefully shuts the node down; safe to call multiple times.
func (n *Node) Stop() error {
	if !atomic.CompareAndSwapInt32(&n.shutdown, 0, 1) {
		return nil
	}
	if n.cancel != nil {
		n.cancel()
	}
	if n.listener != nil {
		if err := n.listener.Close(); err != nil {
			return errors.Wrap(err, "closing listener")
		}
	}
	return nil
}

// SubmitTx delivers tx to a running node listening at peerAddr over the
// same signed P2P channel peers use to relay transactions to each other
// (specification §6's submit_tx command): a Node built by
// openNodeForQuery has its own empty, in-process mempool, so the only
// way to reach a separately running `xaid start` process's real mempool
// is to dial it as a peer and push the transaction down CmdTx, exactly
// as a peer that already had it would. Returns the reject reason if the
// remote node answers with a MsgReject within PeerRPCTimeout; a silent
// window, like an unsolicited relay, is treated as acceptance.
func (n *Node) SubmitTx(ctx context.Context, peerAddr string, tx *wire.Transaction) error {
	netConn, err := p2p.Dial(peerAddr)
	if err != nil {
		return errors.Wrapf(err, "dialing %s", peerAddr)
	}
	defer netConn.Close()

	peerID := netConn.RemoteAddr().String()
	peer := n.Registry.Add(peerID, peerID)
	defer n.Registry.Remove(peerID)

	router := p2p.NewRouter(wire.CmdReject)
	rejectRoute, _ := router.RouteTo(wire.CmdReject)
	conn := p2p.NewConn(netConn, peer, router)
	verify := func(env *wire.Envelope) (wire.Message, error) {
		return p2p.VerifyEnvelope(n.Registry, n.Replay, n.params, env, peerID, time.Now())
	}

	connCtx, connCancel := context.WithTimeout(ctx, n.params.PeerRPCTimeout)
	defer connCancel()

	go conn.WriteLoop()
	go func() { _ = conn.ReadLoop(verify) }()
	defer router.Close()

	if err := n.sendMessage(peer, &wire.MsgTx{Transaction: *tx}); err != nil {
		return errors.Wrap(err, "sending transaction")
	}

	rejectCh := forwardRoute(connCtx, rejectRoute)
	select {
	case msg, ok := <-rejectCh:
		if !ok {
			return nil
		}
		rej, ok := msg.(*wire.MsgReject)
		if !ok {
			return nil
		}
		return errors.Errorf("rejected by %s: %s (%s)", peerAddr, rej.Reason, rej.ErrorKind)
	case <-connCtx.Done():
		return nil // no reject within the window: treated as accepted
	}
}

// Status reports the summary the CLI surface's `status` command needs
// (specification §6: "height, tip, peer count, mempool size").
type Status struct {
	Height     uint64
	Tip        string
	PeerCount  int
	MempoolLen int
	State      string
}

// Status returns the node's current summary.
func (n *Node) Status() Status {
	height, hash, _, _ := n.Manager.CandidateTipInfo()
	return Status{
		Height:     height,
		Tip:        fmt.Sprintf("%x", hash),
		PeerCount:  n.Registry.Count(),
		MempoolLen: n.Mempool.Len(),
		State:      n.Manager.State().String(),
	}
}

func (n *Node) acceptLoop(ctx context.Context) {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			return // listener closed
		}
		spawn(func() { n.serveConn(ctx, conn) })
	}
}

// inboundCommands lists every command an inbound connection's Router
// needs a route for; get_headers/get_block requests and hello/ping
// announcements are all routed the same way before a protocol handler
// reads off the matching Route.
var inboundCommands = []wire.MessageCommand{
	wire.CmdHello, wire.CmdPing, wire.CmdPong,
	wire.CmdGetHeaders, wire.CmdHeaders,
	wire.CmdGetBlock, wire.CmdBlock, wire.CmdIBDBlock,
	wire.CmdInvTx, wire.CmdInvBlock, wire.CmdGetData,
	wire.CmdTx, wire.CmdReject,
}

// serveConn registers the peer under its remote address, which stays
// its registry key for the life of the connection (it is not replaced
// by the envelope's sender_pubkey), exchanges a MsgHello handshake to learn the
// peer's announced tip, and — once that tip shows greater cumulative
// work than the local one — drives a sync.Flow against it for as long
// as the connection stays open. It also answers the peer's own
// CmdGetHeaders/CmdGetBlock requests, so a freshly connected node can
// sync from this one too.
func (n *Node) serveConn(ctx context.Context, netConn net.Conn) {
	defer netConn.Close()

	peerID := netConn.RemoteAddr().String()
	peer := n.Registry.Add(peerID, peerID)
	router := p2p.NewRouter(inboundCommands...)

	// CmdHeaders and CmdIBDBlock are both replies to requests a sync.Flow
	// issues for this peer; sharing one route lets Flow read a single
	// ordered stream of "whatever this peer sent back" regardless of
	// which request is outstanding. CmdBlock is kept off this route
	// deliberately: it carries gossip-relay block bodies, not IBD
	// replies, and must never be mistaken for one.
	syncReplies := p2p.NewRoute()
	router.AddRoute(wire.CmdHeaders, syncReplies)
	router.AddRoute(wire.CmdIBDBlock, syncReplies)

	helloRoute, _ := router.RouteTo(wire.CmdHello)
	getHeadersRoute, _ := router.RouteTo(wire.CmdGetHeaders)
	getBlockRoute, _ := router.RouteTo(wire.CmdGetBlock)

	invTxRoute, _ := router.RouteTo(wire.CmdInvTx)
	invBlockRoute, _ := router.RouteTo(wire.CmdInvBlock)
	getDataRoute, _ := router.RouteTo(wire.CmdGetData)
	txRoute, _ := router.RouteTo(wire.CmdTx)
	rejectRoute, _ := router.RouteTo(wire.CmdReject)

	conn := p2p.NewConn(netConn, peer, router)
	verify := func(env *wire.Envelope) (wire.Message, error) {
		return p2p.VerifyEnvelope(n.Registry, n.Replay, n.params, env, peerID, time.Now())
	}

	go conn.WriteLoop()

	done := make(chan struct{})
	go func() {
		_ = conn.ReadLoop(verify)
		close(done)
	}()

	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()

	if err := n.sendMessage(peer, n.helloMessage()); err == nil {
		spawn(func() { n.greetAndSync(connCtx, peerID, peer, helloRoute, syncReplies) })
	}
	spawn(func() { n.serveSyncRequests(connCtx, peer, getHeadersRoute, getBlockRoute) })
	spawn(func() {
		n.serveGossip(connCtx, peerID, peer, invTxRoute, invBlockRoute, getDataRoute, txRoute, rejectRoute)
	})

	select {
	case <-ctx.Done():
	case <-done:
	}
	connCancel()
	router.Close()
	n.Registry.Remove(peerID)
}

// helloMessage reports the node's current tip the way every newly
// opened connection announces itself.
func (n *Node) helloMessage() *wire.MsgHello {
	height, hash, _, _ := n.Manager.CandidateTipInfo()
	return &wire.MsgHello{
		ProtocolVersion: protocolVersion,
		NetworkID:       n.params.NetworkID,
		BestTipHash:     hash,
		BestTipHeight:   height,
		CumulativeWork:  n.Manager.TipWork().Bytes(),
	}
}

// greetAndSync waits for the peer's own MsgHello, and if it reports
// more cumulative work than the local tip, runs a sync.Flow against it
// until caught up or the connection closes.
func (n *Node) greetAndSync(ctx context.Context, peerID string, peer *p2p.Peer, helloRoute, syncReplies *p2p.Route) {
	msg, err := helloRoute.DequeueWithTimeout(n.params.PeerRPCTimeout)
	if err != nil {
		return
	}
	hello, ok := msg.(*wire.MsgHello)
	if !ok || hello.NetworkID != n.params.NetworkID {
		return
	}

	peerTip := sync.PeerTip{
		PeerID:         peerID,
		Hash:           hello.BestTipHash,
		Height:         hello.BestTipHeight,
		CumulativeWork: new(big.Int).SetBytes(hello.CumulativeWork),
	}
	if peerTip.CumulativeWork.Cmp(n.Manager.TipWork()) <= 0 {
		return
	}

	outgoing := p2p.NewRoute()
	defer outgoing.Close()
	spawn(func() { n.bridgeOutgoing(ctx, peer, outgoing) })

	flow := sync.NewFlow(n.Manager, n.params, syncReplies, outgoing, peerTip)
	_ = flow.Run(ctx)
}

// bridgeOutgoing drains a sync.Flow's outgoing route — the
// MsgGetHeaders/MsgGetBlock requests it issues — onto the real
// connection, signed the same way any other outbound message is.
func (n *Node) bridgeOutgoing(ctx context.Context, peer *p2p.Peer, outgoing *p2p.Route) {
	for {
		msg, err := outgoing.Dequeue()
		if err != nil {
			return
		}
		if err := n.sendMessage(peer, msg); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// serveSyncRequests answers a peer's own CmdGetHeaders/CmdGetBlock
// requests from the committed chain, the server side of IBD that lets
// another node catch up from this one. Each route gets its own
// long-lived forwarding goroutine so a burst of requests on one
// command can never starve or drop messages waiting on the other.
func (n *Node) serveSyncRequests(ctx context.Context, peer *p2p.Peer, getHeadersRoute, getBlockRoute *p2p.Route) {
	headersCh := forwardRoute(ctx, getHeadersRoute)
	blockCh := forwardRoute(ctx, getBlockRoute)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-headersCh:
			if !ok {
				return
			}
			req, ok := msg.(*wire.MsgGetHeaders)
			if !ok {
				continue
			}
			_ = n.sendMessage(peer, n.headersReply(req))
		case msg, ok := <-blockCh:
			if !ok {
				return
			}
			req, ok := msg.(*wire.MsgGetBlock)
			if !ok {
				continue
			}
			if block, err := n.Store.GetBlockByHash(req.BlockHash); err == nil {
				_ = n.sendMessage(peer, &wire.MsgIBDBlock{Block: *block})
			}
		}
	}
}

// serveGossip drains one peer's gossip-relay routes for as long as the
// connection stays open: inventory announcements (inv_tx/inv_block),
// body requests (get_data), delivered transactions (tx), and delivery
// rejections (reject). This is the steady-state relay path alongside
// serveSyncRequests's initial-sync path (specification §2 data flow,
// §4.10: inv -> get_data -> tx/block).
func (n *Node) serveGossip(
	ctx context.Context,
	peerID string,
	peer *p2p.Peer,
	invTxRoute, invBlockRoute, getDataRoute, txRoute, rejectRoute *p2p.Route,
) {
	invTxCh := forwardRoute(ctx, invTxRoute)
	invBlockCh := forwardRoute(ctx, invBlockRoute)
	getDataCh := forwardRoute(ctx, getDataRoute)
	txCh := forwardRoute(ctx, txRoute)
	rejectCh := forwardRoute(ctx, rejectRoute)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-invTxCh:
			if !ok {
				return
			}
			if inv, ok := msg.(*wire.MsgInv); ok {
				n.handleInv(peer, inv)
			}
		case msg, ok := <-invBlockCh:
			if !ok {
				return
			}
			if inv, ok := msg.(*wire.MsgInv); ok {
				n.handleInv(peer, inv)
			}
		case msg, ok := <-getDataCh:
			if !ok {
				return
			}
			if req, ok := msg.(*wire.MsgGetData); ok {
				n.handleGetData(peer, req)
			}
		case msg, ok := <-txCh:
			if !ok {
				return
			}
			if txMsg, ok := msg.(*wire.MsgTx); ok {
				n.handleRelayedTx(peerID, peer, &txMsg.Transaction)
			}
		case msg, ok := <-rejectCh:
			if !ok {
				return
			}
			if rej, ok := msg.(*wire.MsgReject); ok {
				srvrLog.Debugf("peer %s rejected object %x: %s (%s)", peerID, rej.ID, rej.Reason, rej.ErrorKind)
			}
		}
	}
}

// handleInv answers an inventory announcement by requesting the bodies
// of any id this node does not already have, the inv->get_data half of
// the relay protocol.
func (n *Node) handleInv(peer *p2p.Peer, inv *wire.MsgInv) {
	var items []wire.GetDataItem
	for _, id := range inv.IDs {
		switch inv.Type {
		case wire.InvTypeTx:
			if n.Mempool.Has(id) {
				continue
			}
		case wire.InvTypeBlock:
			if n.Manager.HasBlock(id) {
				continue
			}
		}
		items = append(items, wire.GetDataItem{Type: inv.Type, ID: id})
	}
	if len(items) == 0 {
		return
	}
	_ = n.sendMessage(peer, &wire.MsgGetData{Items: items})
}

// handleGetData answers a peer's body request out of the mempool or the
// committed chain, the get_data->tx/block half of the relay protocol.
func (n *Node) handleGetData(peer *p2p.Peer, req *wire.MsgGetData) {
	for _, item := range req.Items {
		switch item.Type {
		case wire.InvTypeTx:
			if tx, ok := n.Mempool.Get(item.ID); ok {
				_ = n.sendMessage(peer, &wire.MsgTx{Transaction: *tx})
			}
		case wire.InvTypeBlock:
			if block, err := n.Store.GetBlockByHash(item.ID); err == nil {
				_ = n.sendMessage(peer, &wire.MsgBlock{Block: *block})
			}
		}
	}
}

// handleRelayedTx validates and admits a transaction a peer delivered in
// response to get_data, then re-announces it to the rest of the mesh
// (specification §2: "incoming transactions -> stateless validator ->
// mempool ... P2P gossips"), skipping the peer it came from.
func (n *Node) handleRelayedTx(peerID string, peer *p2p.Peer, tx *wire.Transaction) {
	if n.Mempool.Has(tx.TxID()) {
		return
	}
	if err := n.Validator.CheckTransactionStateless(tx); err != nil {
		n.rejectTx(peer, tx, err)
		return
	}

	account := validator.AccountState{NextPendingNonce: n.Manager.AccountNonce(tx.Sender)}
	tipHeight, _, _, _ := n.Manager.CandidateTipInfo()
	spendHeight := tipHeight + 1 // the height of the block this tx would next be mined into
	if err := n.Validator.CheckTransactionStateful(tx, spendHeight, n.Store.UTXOSet(), account, n.Mempool); err != nil {
		n.rejectTx(peer, tx, err)
		return
	}

	if err := n.Mempool.Accept(tx, n.params.MaxTxBytes); err != nil {
		n.rejectTx(peer, tx, err)
		return
	}

	n.Gossiper.Announce(wire.InvTypeTx, []wire.Hash{tx.TxID()}, peerID)
}

// rejectTx tells the sending peer why a delivered transaction was
// refused (specification's reject message).
func (n *Node) rejectTx(peer *p2p.Peer, tx *wire.Transaction, cause error) {
	_ = n.sendMessage(peer, &wire.MsgReject{ID: tx.TxID(), ErrorKind: "tx", Reason: cause.Error()})
}

// forwardRoute runs until ctx is done or the route closes, forwarding
// every message it receives onto the returned channel.
func forwardRoute(ctx context.Context, route *p2p.Route) <-chan wire.Message {
	out := make(chan wire.Message)
	go func() {
		defer close(out)
		for {
			msg, err := route.Dequeue()
			if err != nil {
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// headersReply serves one page of headers starting just after
// req.FromHash, up to HeaderBatch entries.
func (n *Node) headersReply(req *wire.MsgGetHeaders) *wire.MsgHeaders {
	count := req.Count
	if count == 0 || count > uint32(n.params.HeaderBatch) {
		count = uint32(n.params.HeaderBatch)
	}

	fromHeight := uint64(0)
	if req.FromHash != (wire.Hash{}) {
		fromBlock, err := n.Store.GetBlockByHash(req.FromHash)
		if err != nil {
			return &wire.MsgHeaders{}
		}
		fromHeight = fromBlock.Header.Height + 1
	}

	tipHeight, ok := n.Store.TipHeight()
	if !ok {
		return &wire.MsgHeaders{}
	}

	var headers []wire.BlockHeader
	for h := fromHeight; h <= tipHeight && uint32(len(headers)) < count; h++ {
		block, err := n.Store.GetBlockByHeight(h)
		if err != nil {
			break
		}
		headers = append(headers, block.Header)
	}
	return &wire.MsgHeaders{Headers: headers}
}

// sendMessage signs msg under the node's identity and enqueues it on
// peer's send queue, the one path every outbound message — handshake,
// sync request, mined block, relayed transaction — travels through.
func (n *Node) sendMessage(peer *p2p.Peer, msg wire.Message) error {
	nonce := atomic.AddUint64(&n.nonceCounter, 1)
	env, err := p2p.SignEnvelope(n.identity, nonce, time.Now().Unix(), msg)
	if err != nil {
		return errors.Wrap(err, "signing outbound envelope")
	}
	frame, err := p2p.EncodeEnvelopeFrame(env)
	if err != nil {
		return errors.Wrap(err, "encoding outbound envelope")
	}
	if dropped := peer.Send(frame); dropped {
		return errors.Errorf("peer %s send queue full", peer.ID)
	}
	return nil
}

// miningLoop continuously builds a candidate template against the
// current tip and searches it for a winning nonce, abandoning the
// search the moment a new tip is published (specification §4.8: "on
// any new tip ... workers abandon the current template").
func (n *Node) miningLoop(ctx context.Context) {
	tipEvents := n.Events.Subscribe()
	extraNonce := uint64(0)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		height, hash, medianTimePast, requiredDifficulty := n.Manager.CandidateTipInfo()
		tip := miner.TipInfo{Height: height, Hash: hash, MedianTimePast: medianTimePast, RequiredDifficulty: requiredDifficulty}
		extraNonce++
		tmpl := miner.BuildTemplate(n.params, n.Mempool, tip, n.cfg.MinerAddress, extraNonce, time.Now().Unix())

		mineCtx, mineCancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-tipEvents:
				mineCancel()
			case <-mineCtx.Done():
			}
		}()

		err := n.MinerPool.Mine(mineCtx, tmpl, tip.MedianTimePast)
		mineCancel()
		if err != nil && ctx.Err() != nil {
			return
		}

		select {
		case found := <-n.MinerPool.Found():
			if _, err := n.Manager.ProcessBlock(found.Block); err == nil {
				h, hash, _, _ := n.Manager.CandidateTipInfo()
				n.Events.Publish(TipEvent{Hash: hash, Height: h, Work: n.Manager.TipWork()})
				n.Gossiper.Announce(wire.InvTypeBlock, []wire.Hash{found.Block.Hash()}, "")
			}
		default:
		}
	}
}
