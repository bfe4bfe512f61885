// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const (
	MaxRoomNameLen = 36
	MaxUserNameLen = 36
)

var (
	ErrUserNameTooLong = errors.New("user name too long")
	ErrUserNameEmpty   = errors.New("user name empty")
	ErrRoomNameTooLong = errors.New("room name too long")
	ErrRoomNameEmpty   = errors.New("room name empty")
)

// ValidUserName rejects names the signaling layer must not accept.
func ValidUserName(name string) error {
	if len(name) == 0 {
		return ErrUserNameEmpty
	}
	if len(name) > MaxUserNameLen {
		return ErrUserNameTooLong
	}
	return nil
}

// ValidRoomName rejects room keys the signaling layer must not accept.
func ValidRoomName(name RoomName) error {
	if len(name) == 0 {
		return ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLen {
		return ErrRoomNameTooLong
	}
	return nil
}
