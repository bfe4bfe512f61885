// Package local is an in-process media plane built on pion: pipelines and
// elements are plain Go objects, RTP is relayed between peer connections
// inside the server. It lets a single binary run rooms without an external
// media engine.
package local

import (
	"context"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomkit/internal/domain"
	"github.com/dkeye/roomkit/internal/mediaplane"
)

const defaultStunServer = "stun:stun.l.google.com:19302"

// Provider hands out local clients. All rooms share the pion configuration
// but get independent pipelines.
type Provider struct {
	cfg               webrtc.Configuration
	destroyWhenUnused bool
}

func NewProvider(stunServer string, destroyWhenUnused bool) *Provider {
	if stunServer == "" {
		stunServer = defaultStunServer
	}
	return &Provider{
		cfg: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: []string{stunServer}}},
		},
		destroyWhenUnused: destroyWhenUnused,
	}
}

func (p *Provider) GetClient(_ context.Context, info domain.SessionInfo) (mediaplane.Client, error) {
	log.Debug().Str("module", "mediaplane").
		Str("room", string(info.Room)).
		Msg("handing out local media plane client")
	return &Client{cfg: p.cfg}, nil
}

func (p *Provider) DestroyWhenUnused() bool {
	return p.destroyWhenUnused
}

// Client is one local media plane instance.
type Client struct {
	cfg webrtc.Configuration
}

func (c *Client) CreatePipeline(_ context.Context) (mediaplane.Pipeline, error) {
	return newPipeline(c.cfg), nil
}

func (c *Client) Close() error {
	return nil
}
