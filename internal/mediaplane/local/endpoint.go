package local

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomkit/internal/mediaplane"
)

// Endpoint terminates one WebRTC peer connection. Incoming RTP is relayed
// to the wired sinks; packets arriving from other elements are mirrored
// onto the peer connection as local tracks.
type Endpoint struct {
	id string
	pc *webrtc.PeerConnection
	pl *Pipeline

	links  linkSet
	out    *outTracks
	cancel context.CancelFunc

	mu       sync.Mutex
	onICE    func(mediaplane.ICECandidate)
	errSubs  map[string]func(mediaplane.ErrorEvent)
	released bool
}

func newEndpoint(pl *Pipeline, cfg webrtc.Configuration, opts mediaplane.EndpointOptions) (*Endpoint, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	e := &Endpoint{
		id:      uuid.NewString(),
		pc:      pc,
		pl:      pl,
		out:     newOutTracks(pc),
		errSubs: make(map[string]func(mediaplane.ErrorEvent)),
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	if opts.DataChannels {
		if _, err := pc.CreateDataChannel("data", nil); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		e.emitICE(cand.ToJSON())
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "mediaplane").
			Str("endpoint", e.id).Str("peer_connection_state", s.String()).
			Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed {
			ev := mediaplane.ErrorEvent{
				Source:      e.id,
				Kind:        "ConnectionFailed",
				Description: "peer connection entered failed state",
			}
			e.emitError(ev)
			e.pl.emitError(ev)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().Str("module", "mediaplane").
			Str("endpoint", e.id).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track received")
		go e.relay(ctx, track)
	})

	return e, nil
}

// relay reads RTP packets from the remote track and fans them out.
func (e *Endpoint) relay(ctx context.Context, src *webrtc.TrackRemote) {
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "mediaplane").
				Str("endpoint", e.id).
				Msg("relay ctx done")
			return
		default:
		}
		pkt, _, err := src.ReadRTP()
		if err != nil {
			log.Warn().Err(err).Str("module", "mediaplane").
				Str("endpoint", e.id).Str("track_id", src.ID()).
				Msg("relay read RTP error, stopping")
			return
		}
		e.links.forward(src, pkt)
	}
}

func (e *Endpoint) ID() string { return e.id }

func (e *Endpoint) Connect(_ context.Context, sink mediaplane.Element, t mediaplane.MediaType) error {
	rs, ok := sink.(rtpSink)
	if !ok {
		return errors.New("sink is not a local media plane element")
	}
	e.links.connect(rs, t)
	return nil
}

func (e *Endpoint) Disconnect(_ context.Context, sink mediaplane.Element, t mediaplane.MediaType) error {
	rs, ok := sink.(rtpSink)
	if !ok {
		return errors.New("sink is not a local media plane element")
	}
	e.links.disconnect(rs, t)
	return nil
}

func (e *Endpoint) Release(_ context.Context) error {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return nil
	}
	e.released = true
	e.mu.Unlock()

	e.cancel()
	e.out.markAllDelete()
	e.links.clear()
	e.pl.remove(e.id)
	return e.pc.Close()
}

func (e *Endpoint) GenerateOffer(_ context.Context) (string, error) {
	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := e.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (e *Endpoint) ProcessOffer(_ context.Context, offer string) (string, error) {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}
	if err := e.pc.SetRemoteDescription(remote); err != nil {
		return "", err
	}
	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := e.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (e *Endpoint) ProcessAnswer(_ context.Context, answer string) (string, error) {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}
	if err := e.pc.SetRemoteDescription(remote); err != nil {
		return "", err
	}
	local := e.pc.LocalDescription()
	if local == nil {
		return "", errors.New("no local description to answer against")
	}
	return local.SDP, nil
}

// GatherCandidates is a no-op: pion trickles candidates as soon as a local
// description is set, delivered through OnICECandidate.
func (e *Endpoint) GatherCandidates(_ context.Context) error {
	log.Debug().Str("module", "mediaplane").
		Str("endpoint", e.id).
		Msg("candidate gathering running")
	return nil
}

func (e *Endpoint) AddICECandidate(_ context.Context, cand mediaplane.ICECandidate) error {
	mid := cand.SDPMid
	idx := cand.SDPMLineIndex
	return e.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	})
}

func (e *Endpoint) OnICECandidate(fn func(mediaplane.ICECandidate)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onICE = fn
}

func (e *Endpoint) OnError(fn func(mediaplane.ErrorEvent)) string {
	id := uuid.NewString()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errSubs[id] = fn
	return id
}

func (e *Endpoint) OffError(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.errSubs, id)
}

func (e *Endpoint) emitICE(init webrtc.ICECandidateInit) {
	e.mu.Lock()
	fn := e.onICE
	e.mu.Unlock()
	if fn == nil {
		return
	}
	cand := mediaplane.ICECandidate{Candidate: init.Candidate}
	if init.SDPMid != nil {
		cand.SDPMid = *init.SDPMid
	}
	if init.SDPMLineIndex != nil {
		cand.SDPMLineIndex = *init.SDPMLineIndex
	}
	fn(cand)
}

func (e *Endpoint) emitError(ev mediaplane.ErrorEvent) {
	e.mu.Lock()
	subs := make([]func(mediaplane.ErrorEvent), 0, len(e.errSubs))
	for _, fn := range e.errSubs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// rtpSink: packets coming from other elements are mirrored onto the peer
// connection.
func (e *Endpoint) sinkID() string { return e.id }

func (e *Endpoint) writeRTP(src *webrtc.TrackRemote, pkt *rtp.Packet) {
	e.out.writeRTP(src, pkt)
}
