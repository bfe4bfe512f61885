package room

import (
	"context"
	"testing"

	"github.com/dkeye/roomkit/internal/domain"
	"github.com/dkeye/roomkit/internal/mediaplane"
)

func TestCreateEndpointReturnsPrevious(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()
	mustJoin(t, m, "r1", "alice", "pid-a")
	p := getTestParticipant(t, m, "r1", "pid-a")

	sub := p.GetNewOrExistingSubscriber("bob")
	prev, err := sub.CreateEndpoint(ctx)
	if err != nil || prev != nil {
		t.Fatalf("first create: prev=%v err=%v", prev, err)
	}
	first := sub.Endpoint()

	prev, err = sub.CreateEndpoint(ctx)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if prev != first {
		t.Fatal("second create must return the already existing endpoint")
	}
}

func TestApplyAndRevertMediaElements(t *testing.T) {
	m, prov, _ := newTestManager()
	ctx := context.Background()
	mustJoin(t, m, "r1", "alice", "pid-a")

	// Loopback forces the internal chain to be wired immediately.
	if _, err := m.PublishMedia(ctx, "pid-a", true, "offer-a", nil, mediaplane.MediaAll, true); err != nil {
		t.Fatalf("publish with loopback: %v", err)
	}

	pl := prov.client(0).pipeline(0)
	pubEp, passThru := pl.endpoint(0), pl.passthrough(0)
	if !pubEp.connectedTo(passThru.ID()) {
		t.Fatal("endpoint should feed its passthrough")
	}

	elemA := newFakeElement("filter")
	if err := m.AddMediaElement(ctx, "pid-a", elemA, mediaplane.MediaAll); err != nil {
		t.Fatalf("add element: %v", err)
	}
	if !pubEp.connectedTo(elemA.ID()) {
		t.Fatal("endpoint should feed the new head element")
	}
	if !elemA.connectedTo(passThru.ID()) {
		t.Fatal("head element should feed the passthrough")
	}

	elemB := newFakeElement("filter")
	if err := m.AddMediaElement(ctx, "pid-a", elemB, mediaplane.MediaAll); err != nil {
		t.Fatalf("add second element: %v", err)
	}
	if !pubEp.connectedTo(elemB.ID()) {
		t.Fatal("endpoint should feed the newest head element")
	}
	if !elemB.connectedTo(elemA.ID()) {
		t.Fatal("newest head should feed the previous head")
	}

	if err := m.RemoveMediaElement(ctx, "pid-a", elemB); err != nil {
		t.Fatalf("remove element: %v", err)
	}
	if !pubEp.connectedTo(elemA.ID()) {
		t.Fatal("endpoint should be bridged back to the remaining element")
	}
	if pubEp.connectedTo(elemB.ID()) {
		t.Fatal("endpoint should have dropped its link to the removed element")
	}
	if elemB.connectedTo(elemA.ID()) {
		t.Fatal("removed element should have dropped its downstream link")
	}
	waitFor(t, "removed element release", elemB.isReleased)

	if err := m.RemoveMediaElement(ctx, "pid-a", elemB); !IsCode(err, GenericError) {
		t.Fatalf("removing an unknown element should fail, got %v", err)
	}
}

func TestPublisherMuteTracksState(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()
	mustJoin(t, m, "r1", "alice", "pid-a")
	mustPublish(t, m, "pid-a")
	p := getTestParticipant(t, m, "r1", "pid-a")
	pub, err := p.Publisher()
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}

	if err := pub.Mute(ctx, domain.MutedAudio); err != nil {
		t.Fatalf("mute audio: %v", err)
	}
	if got := pub.MuteType(); got != domain.MutedAudio {
		t.Fatalf("expected MutedAudio, got %s", got)
	}
	if err := pub.Mute(ctx, domain.MutedVideo); err != nil {
		t.Fatalf("mute video: %v", err)
	}
	if got := pub.MuteType(); got != domain.MutedAll {
		t.Fatalf("muting both legs should yield MutedAll, got %s", got)
	}
	if err := pub.Unmute(ctx); err != nil {
		t.Fatalf("unmute: %v", err)
	}
	if got := pub.MuteType(); got != domain.MutedNone {
		t.Fatalf("expected MutedNone after unmute, got %s", got)
	}
}

func TestResolveMuteType(t *testing.T) {
	cases := []struct {
		current, requested, want domain.MutedMediaType
	}{
		{domain.MutedNone, domain.MutedAudio, domain.MutedAudio},
		{domain.MutedNone, domain.MutedVideo, domain.MutedVideo},
		{domain.MutedNone, domain.MutedAll, domain.MutedAll},
		{domain.MutedAudio, domain.MutedVideo, domain.MutedAll},
		{domain.MutedVideo, domain.MutedAudio, domain.MutedAll},
		{domain.MutedAudio, domain.MutedAudio, domain.MutedAudio},
		{domain.MutedAll, domain.MutedAudio, domain.MutedAudio},
	}
	for _, c := range cases {
		if got := resolveMuteType(c.current, c.requested); got != c.want {
			t.Errorf("resolveMuteType(%s, %s) = %s, want %s", c.current, c.requested, got, c.want)
		}
	}
}
