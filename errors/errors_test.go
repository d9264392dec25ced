package errors

import (
	nativeerrors "errors"
	"reflect"
	"testing"
)

func TestCast(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   Error
		wantOK bool
	}{
		{
			name: "with rich error",
			err: Error{
				Code:    ErrBadRequest,
				Message: "this was a bad request",
			},
			want: Error{
				Code:    ErrBadRequest,
				Message: "this was a bad request",
			},
			wantOK: true,
		},
		{
			name: "with native error",
			err:  nativeerrors.New("i am an error"),
			want: Error{
				Code:    ErrUnexpected,
				Err:     nativeerrors.New("i am an error"),
				Message: "unknown operation",
				Details: make(Details),
			},
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Cast(tt.err)
			if ok != tt.wantOK {
				t.Errorf("Cast() ok = %v, want %v", ok, tt.wantOK)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Cast() error = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	orig := NewNotFoundError("player not found", Details{"player_id": "abc"})
	wrapped := Wrap(orig, "fire weapon", Details{"intent": "fire"})
	e, ok := Cast(wrapped)
	if !ok {
		t.Fatal("Wrap() should keep rich error")
	}
	if e.Code != ErrNotFound {
		t.Errorf("Wrap() should keep code, got %v", e.Code)
	}
	if e.Message != "fire weapon: player not found" {
		t.Errorf("Wrap() message = %q", e.Message)
	}
	if e.Details["intent"] != "fire" || e.Details["player_id"] != "abc" {
		t.Errorf("Wrap() should merge details, got %v", e.Details)
	}
}

func TestIs(t *testing.T) {
	if !Is(NewInvalidTransitionError("nope", nil), ErrInvalidTransition) {
		t.Error("Is() should match code")
	}
	if Is(nativeerrors.New("meh"), ErrInvalidTransition) {
		t.Error("Is() should not match native errors")
	}
}

func TestBlameUser(t *testing.T) {
	if !BlameUser(NewNotFoundError("unknown character", nil)) {
		t.Error("BlameUser() should blame user for not-found")
	}
	if !BlameUser(NewInvalidTransitionError("spike already planted", nil)) {
		t.Error("BlameUser() should blame user for invalid transitions")
	}
	if BlameUser(NewInternalError("whoops", nil)) {
		t.Error("BlameUser() should not blame user for internal errors")
	}
	if BlameUser(nativeerrors.New("meh")) {
		t.Error("BlameUser() should not blame user for unexpected errors")
	}
}
