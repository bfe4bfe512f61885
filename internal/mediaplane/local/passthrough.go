package local

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/roomkit/internal/mediaplane"
)

// PassThrough forwards whatever it receives to its wired sinks unchanged.
// Publishers use it as the stable hand-off point subscribers attach to.
type PassThrough struct {
	id string
	pl *Pipeline

	links    linkSet
	released atomic.Bool
}

func newPassThrough(pl *Pipeline) *PassThrough {
	return &PassThrough{id: uuid.NewString(), pl: pl}
}

func (p *PassThrough) ID() string { return p.id }

func (p *PassThrough) Connect(_ context.Context, sink mediaplane.Element, t mediaplane.MediaType) error {
	rs, ok := sink.(rtpSink)
	if !ok {
		return errors.New("sink is not a local media plane element")
	}
	p.links.connect(rs, t)
	return nil
}

func (p *PassThrough) Disconnect(_ context.Context, sink mediaplane.Element, t mediaplane.MediaType) error {
	rs, ok := sink.(rtpSink)
	if !ok {
		return errors.New("sink is not a local media plane element")
	}
	p.links.disconnect(rs, t)
	return nil
}

func (p *PassThrough) Release(_ context.Context) error {
	if !p.released.CompareAndSwap(false, true) {
		return nil
	}
	p.links.clear()
	p.pl.remove(p.id)
	return nil
}

func (p *PassThrough) sinkID() string { return p.id }

func (p *PassThrough) writeRTP(src *webrtc.TrackRemote, pkt *rtp.Packet) {
	if p.released.Load() {
		return
	}
	p.links.forward(src, pkt)
}
