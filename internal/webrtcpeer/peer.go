package webrtcpeer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/client"
)

var (
	ErrAlreadyConnected = errors.New("webrtcpeer: connection to remote already exists")
	ErrUnexpectedAnswer = errors.New("webrtcpeer: answer without a pending offer")
)

// maxPendingCandidates bounds the candidates buffered per remote while its
// description is outstanding.
const maxPendingCandidates = 64

type Config struct {
	API         *webrtc.API
	Client      *client.Client
	Credentials client.Credentials
	ICEServers  []webrtc.ICEServer
	Logger      *slog.Logger

	// OnDataChannel is called for channels opened by remote offerers.
	OnDataChannel func(remote string, dc *webrtc.DataChannel)
}

// Peer owns one PeerConnection per remote relay peer.
//
// Descriptions are sent only after ICE gathering completes, so the SDP
// already carries every local candidate. Candidates trickled by the remote
// side are applied once its description is known.
type Peer struct {
	api           *webrtc.API
	client        *client.Client
	creds         client.Credentials
	pcConfig      webrtc.Configuration
	log           *slog.Logger
	onDataChannel func(remote string, dc *webrtc.DataChannel)

	mu      sync.Mutex
	conns   map[string]*webrtc.PeerConnection
	pending map[string][]webrtc.ICECandidateInit
}

func New(cfg Config) *Peer {
	api := cfg.API
	if api == nil {
		api = webrtc.NewAPI()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Peer{
		api:           api,
		client:        cfg.Client,
		creds:         cfg.Credentials,
		pcConfig:      webrtc.Configuration{ICEServers: cfg.ICEServers},
		log:           logger.With("peer_id", cfg.Credentials.ID),
		onDataChannel: cfg.OnDataChannel,
		conns:         make(map[string]*webrtc.PeerConnection),
		pending:       make(map[string][]webrtc.ICECandidateInit),
	}
}

// Offer opens a PeerConnection to remote with a single data channel and
// sends the offer. The answer is applied by Run/Handle when it arrives.
func (p *Peer) Offer(ctx context.Context, remote, label string, init *webrtc.DataChannelInit) (*webrtc.DataChannel, error) {
	p.mu.Lock()
	if _, ok := p.conns[remote]; ok {
		p.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	pc, err := p.newConnLocked(remote)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	dc, err := pc.CreateDataChannel(label, init)
	if err != nil {
		p.closeConn(remote)
		return nil, fmt.Errorf("create data channel: %w", err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		p.closeConn(remote)
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := p.setLocalAndSend(ctx, remote, pc, offer); err != nil {
		p.closeConn(remote)
		return nil, err
	}
	return dc, nil
}

// Run handles events from stream until it ends or ctx is done.
func (p *Peer) Run(ctx context.Context, stream client.Stream) error {
	stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
	defer stop()

	for {
		ev, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ev.Error != "" {
			p.log.Warn("relay reported error", "error", ev.Error)
			continue
		}
		if err := p.Handle(ctx, ev); err != nil {
			p.log.Warn("failed to handle signal", "from", ev.From, "err", err)
		}
	}
}

// Handle applies a single relay event.
func (p *Peer) Handle(ctx context.Context, ev client.Event) error {
	if len(ev.Disconnect) > 0 {
		for _, id := range ev.Disconnect {
			p.closeConn(id)
		}
		return nil
	}
	if ev.From == "" {
		return nil
	}
	if desc, ok := ev.SessionDescription(); ok {
		switch desc.Type {
		case webrtc.SDPTypeOffer:
			return p.answer(ctx, ev.From, desc)
		case webrtc.SDPTypeAnswer:
			return p.applyAnswer(ev.From, desc)
		default:
			return fmt.Errorf("unsupported description type %s", desc.Type)
		}
	}
	if cand, ok := ev.ICECandidate(); ok {
		return p.addCandidate(ev.From, cand)
	}
	return nil
}

func (p *Peer) answer(ctx context.Context, remote string, offer webrtc.SessionDescription) error {
	p.mu.Lock()
	if old, ok := p.conns[remote]; ok {
		// No renegotiation: a fresh offer replaces the old connection.
		delete(p.conns, remote)
		_ = old.Close()
	}
	pc, err := p.newConnLocked(remote)
	p.mu.Unlock()
	if err != nil {
		return err
	}

	if err := pc.SetRemoteDescription(offer); err != nil {
		p.closeConn(remote)
		return fmt.Errorf("set remote offer: %w", err)
	}
	p.flushCandidates(remote, pc)

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		p.closeConn(remote)
		return fmt.Errorf("create answer: %w", err)
	}
	if err := p.setLocalAndSend(ctx, remote, pc, answer); err != nil {
		p.closeConn(remote)
		return err
	}
	return nil
}

func (p *Peer) applyAnswer(remote string, answer webrtc.SessionDescription) error {
	p.mu.Lock()
	pc, ok := p.conns[remote]
	p.mu.Unlock()
	if !ok || pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		return ErrUnexpectedAnswer
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	p.flushCandidates(remote, pc)
	return nil
}

// addCandidate applies cand, or buffers it until the remote description is
// set. Candidates from remotes with no connection are dropped: the relay
// delivers a remote's offer before its candidates.
func (p *Peer) addCandidate(remote string, cand webrtc.ICECandidateInit) error {
	p.mu.Lock()
	pc, ok := p.conns[remote]
	if !ok {
		p.mu.Unlock()
		p.log.Debug("dropping candidate for unknown remote", "remote", remote)
		return nil
	}
	if pc.RemoteDescription() == nil {
		if len(p.pending[remote]) >= maxPendingCandidates {
			p.mu.Unlock()
			p.log.Debug("dropping candidate; buffer full", "remote", remote)
			return nil
		}
		p.pending[remote] = append(p.pending[remote], cand)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return pc.AddICECandidate(cand)
}

func (p *Peer) flushCandidates(remote string, pc *webrtc.PeerConnection) {
	p.mu.Lock()
	cands := p.pending[remote]
	delete(p.pending, remote)
	p.mu.Unlock()

	for _, c := range cands {
		if err := pc.AddICECandidate(c); err != nil {
			p.log.Debug("dropping remote candidate", "remote", remote, "err", err)
		}
	}
}

func (p *Peer) setLocalAndSend(ctx context.Context, remote string, pc *webrtc.PeerConnection, desc webrtc.SessionDescription) error {
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("set local %s: %w", desc.Type, err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return ctx.Err()
	}

	local := pc.LocalDescription()
	if local == nil {
		return fmt.Errorf("missing local %s", desc.Type)
	}
	if err := p.client.SendSignal(ctx, p.creds, remote, *local); err != nil {
		return fmt.Errorf("send %s: %w", desc.Type, err)
	}
	return nil
}

func (p *Peer) newConnLocked(remote string) (*webrtc.PeerConnection, error) {
	pc, err := p.api.NewPeerConnection(p.pcConfig)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if p.onDataChannel != nil {
			p.onDataChannel(remote, dc)
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.log.Debug("peer connection state", "remote", remote, "state", s.String())
		if s == webrtc.PeerConnectionStateFailed {
			p.forget(remote, pc)
			_ = pc.Close()
		}
	})
	p.conns[remote] = pc
	return pc, nil
}

// Connection returns the current PeerConnection to remote, if any.
func (p *Peer) Connection(remote string) (*webrtc.PeerConnection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pc, ok := p.conns[remote]
	return pc, ok
}

func (p *Peer) forget(remote string, pc *webrtc.PeerConnection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conns[remote] == pc {
		delete(p.conns, remote)
		delete(p.pending, remote)
	}
}

func (p *Peer) closeConn(remote string) {
	p.mu.Lock()
	pc, ok := p.conns[remote]
	delete(p.conns, remote)
	delete(p.pending, remote)
	p.mu.Unlock()
	if ok {
		_ = pc.Close()
	}
}

// Close closes every PeerConnection.
func (p *Peer) Close() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*webrtc.PeerConnection)
	clear(p.pending)
	p.mu.Unlock()

	for _, pc := range conns {
		_ = pc.Close()
	}
}
