package room

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCodeExtraction(t *testing.T) {
	err := newError(RoomNotFound, "room %s not found", "r1")
	if got := ErrorCode(err); got != RoomNotFound {
		t.Fatalf("ErrorCode = %v, want RoomNotFound", got)
	}
	if !IsCode(err, RoomNotFound) {
		t.Fatal("IsCode should match the code")
	}
	if IsCode(err, RoomClosed) {
		t.Fatal("IsCode should not match a different code")
	}

	wrapped := fmt.Errorf("handling request: %w", err)
	if !IsCode(wrapped, RoomNotFound) {
		t.Fatal("IsCode should see through wrapping")
	}

	if got := ErrorCode(errors.New("plain")); got != GenericError {
		t.Fatalf("foreign errors map to GenericError, got %v", got)
	}
}

func TestAsError(t *testing.T) {
	if AsError(nil) != nil {
		t.Fatal("nil must stay nil")
	}
	re := AsError(newError(UserClosed, "gone"))
	if re == nil || re.Code != UserClosed {
		t.Fatalf("expected UserClosed, got %v", re)
	}
	re = AsError(errors.New("boom"))
	if re == nil || re.Code != GenericError || re.Message != "boom" {
		t.Fatalf("foreign error should wrap as GenericError, got %v", re)
	}
}

func TestCodeStrings(t *testing.T) {
	if got := RoomNotFound.String(); got != "ROOM_NOT_FOUND" {
		t.Fatalf("RoomNotFound = %q", got)
	}
	if got := Code(999).String(); got != "GENERIC_ERROR" {
		t.Fatalf("unknown code = %q", got)
	}
	if got := newError(MediaSdpError, "bad sdp").Error(); got != "MEDIA_SDP_ERROR: bad sdp" {
		t.Fatalf("error string = %q", got)
	}
}
