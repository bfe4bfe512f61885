package local

import (
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/roomkit/internal/mediaplane"
)

// rtpSink is anything a local element can forward RTP into.
type rtpSink interface {
	sinkID() string
	writeRTP(src *webrtc.TrackRemote, pkt *rtp.Packet)
}

// mediaLink is one wiring towards a sink with per-leg switches, so muting
// audio keeps video flowing.
type mediaLink struct {
	sink  rtpSink
	audio atomic.Bool
	video atomic.Bool
}

func (l *mediaLink) enable(t mediaplane.MediaType) {
	switch t {
	case mediaplane.MediaAll:
		l.audio.Store(true)
		l.video.Store(true)
	case mediaplane.MediaAudio:
		l.audio.Store(true)
	case mediaplane.MediaVideo:
		l.video.Store(true)
	}
}

func (l *mediaLink) allows(kind webrtc.RTPCodecType) bool {
	switch kind {
	case webrtc.RTPCodecTypeAudio:
		return l.audio.Load()
	case webrtc.RTPCodecTypeVideo:
		return l.video.Load()
	default:
		return false
	}
}

// linkSet holds the outgoing wirings of one element.
type linkSet struct {
	mu    sync.RWMutex
	links map[string]*mediaLink
}

func (s *linkSet) connect(sink rtpSink, t mediaplane.MediaType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.links == nil {
		s.links = make(map[string]*mediaLink)
	}
	l, ok := s.links[sink.sinkID()]
	if !ok {
		l = &mediaLink{sink: sink}
		s.links[sink.sinkID()] = l
	}
	l.enable(t)
}

func (s *linkSet) disconnect(sink rtpSink, t mediaplane.MediaType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[sink.sinkID()]
	if !ok {
		return
	}
	switch t {
	case mediaplane.MediaAll:
		delete(s.links, sink.sinkID())
	case mediaplane.MediaAudio:
		l.audio.Store(false)
	case mediaplane.MediaVideo:
		l.video.Store(false)
	}
}

func (s *linkSet) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = nil
}

// forward fans the packet out to every sink whose leg for the track's kind
// is enabled.
func (s *linkSet) forward(src *webrtc.TrackRemote, pkt *rtp.Packet) {
	s.mu.RLock()
	snapshot := make([]*mediaLink, 0, len(s.links))
	for _, l := range s.links {
		snapshot = append(snapshot, l)
	}
	s.mu.RUnlock()

	for _, l := range snapshot {
		if l.allows(src.Kind()) {
			l.sink.writeRTP(src, pkt)
		}
	}
}

// connected reports whether a link towards sinkID exists with at least one
// enabled leg.
func (s *linkSet) connected(sinkID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[sinkID]
	return ok && (l.audio.Load() || l.video.Load())
}
