package local

import (
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type trackState int32

const (
	trackStateOk trackState = iota
	trackStateDelete
)

// outTrack is a single outgoing track towards one peer connection.
type outTrack struct {
	track *webrtc.TrackLocalStaticRTP
	state atomic.Int32 // zero by default (trackStateOk)
}

func (ot *outTrack) getState() trackState {
	return trackState(ot.state.Load())
}

func (ot *outTrack) markDelete() {
	ot.state.Store(int32(trackStateDelete))
}

// outTracks mirrors incoming remote tracks as local tracks on a peer
// connection, created lazily on the first packet of each source.
type outTracks struct {
	pc *webrtc.PeerConnection

	mu     sync.Mutex
	tracks map[string]*outTrack
}

func newOutTracks(pc *webrtc.PeerConnection) *outTracks {
	return &outTracks{pc: pc, tracks: make(map[string]*outTrack)}
}

func (o *outTracks) writeRTP(src *webrtc.TrackRemote, pkt *rtp.Packet) {
	o.mu.Lock()
	ot, ok := o.tracks[src.ID()]
	if !ok {
		track, err := webrtc.NewTrackLocalStaticRTP(src.Codec().RTPCodecCapability, src.ID(), src.StreamID())
		if err != nil {
			o.mu.Unlock()
			log.Error().Err(err).Str("module", "mediaplane").
				Str("track_id", src.ID()).
				Msg("could not create local track")
			return
		}
		if _, err := o.pc.AddTrack(track); err != nil {
			o.mu.Unlock()
			log.Error().Err(err).Str("module", "mediaplane").
				Str("track_id", src.ID()).
				Msg("could not attach local track")
			return
		}
		ot = &outTrack{track: track}
		o.tracks[src.ID()] = ot
	}
	o.mu.Unlock()

	if ot.getState() == trackStateDelete {
		return
	}
	if err := ot.track.WriteRTP(pkt); err != nil {
		log.Error().Err(err).Str("module", "mediaplane").
			Str("track_id", src.ID()).
			Msg("write RTP error, marking out track for delete")
		ot.markDelete()
	}
}

func (o *outTracks) markAllDelete() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ot := range o.tracks {
		ot.markDelete()
	}
}
