package domain

// SdpType tells how an SDP blob handed to a publish operation must be
// interpreted.
type SdpType int

const (
	SdpOffer SdpType = iota
	SdpAnswer
)

func (t SdpType) String() string {
	switch t {
	case SdpOffer:
		return "OFFER"
	case SdpAnswer:
		return "ANSWER"
	default:
		return "UNKNOWN"
	}
}

// MutedMediaType is the currently muted leg of an endpoint. The zero value
// means nothing is muted.
type MutedMediaType int

const (
	MutedNone MutedMediaType = iota
	MutedAudio
	MutedVideo
	MutedAll
)

func (t MutedMediaType) String() string {
	switch t {
	case MutedNone:
		return "NONE"
	case MutedAudio:
		return "AUDIO"
	case MutedVideo:
		return "VIDEO"
	case MutedAll:
		return "ALL"
	default:
		return "UNKNOWN"
	}
}
