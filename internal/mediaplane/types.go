package mediaplane

// MediaType selects which media legs a wiring operation affects. The zero
// value addresses every leg.
type MediaType int

const (
	MediaAll MediaType = iota
	MediaAudio
	MediaVideo
	MediaData
)

func (t MediaType) String() string {
	switch t {
	case MediaAll:
		return "ALL"
	case MediaAudio:
		return "AUDIO"
	case MediaVideo:
		return "VIDEO"
	case MediaData:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

// ICECandidate is a trickle ICE candidate in transport-neutral form.
type ICECandidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// ErrorEvent is an asynchronous error raised by a pipeline or an element.
type ErrorEvent struct {
	Source      string
	Kind        string
	Description string
	Code        int
}

// EndpointOptions tunes WebRTC endpoint creation.
type EndpointOptions struct {
	// DataChannels enables a data channel on the endpoint.
	DataChannels bool
	// Web selects browser-flavored defaults; false is reserved for native
	// clients with their own transport quirks.
	Web bool
}
