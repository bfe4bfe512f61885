package room

import (
	"errors"
	"fmt"
)

// Code classifies every failure the room core can report.
type Code int

const (
	GenericError Code = iota
	RoomNotFound
	RoomClosed
	RoomAlreadyExists
	UserNotFound
	UserClosed
	UserNotStreaming
	UserAlreadyExists
	MediaEndpointError
	MediaSdpError
	MediaMuteError
)

func (c Code) String() string {
	switch c {
	case RoomNotFound:
		return "ROOM_NOT_FOUND"
	case RoomClosed:
		return "ROOM_CLOSED"
	case RoomAlreadyExists:
		return "ROOM_ALREADY_EXISTS"
	case UserNotFound:
		return "USER_NOT_FOUND"
	case UserClosed:
		return "USER_CLOSED"
	case UserNotStreaming:
		return "USER_NOT_STREAMING"
	case UserAlreadyExists:
		return "USER_ALREADY_EXISTS"
	case MediaEndpointError:
		return "MEDIA_ENDPOINT_ERROR"
	case MediaSdpError:
		return "MEDIA_SDP_ERROR"
	case MediaMuteError:
		return "MEDIA_MUTE_ERROR"
	default:
		return "GENERIC_ERROR"
	}
}

// Error is the typed failure of the room core. Callers branch on Code, the
// message is for humans.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(c Code, format string, a ...any) *Error {
	return &Error{Code: c, Message: fmt.Sprintf(format, a...)}
}

// ErrorCode extracts the Code from err, or GenericError when err is not a
// room error.
func ErrorCode(err error) Code {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return GenericError
}

// IsCode reports whether err is a room error with the given code.
func IsCode(err error, c Code) bool {
	var re *Error
	return errors.As(err, &re) && re.Code == c
}

// AsError converts any error into a *Error, wrapping foreign errors as
// GenericError. Nil stays nil.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	return &Error{Code: GenericError, Message: err.Error()}
}
