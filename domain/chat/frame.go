package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the createDate format carried on the wire.
const DateLayout = "2006-01-02"

const (
	MaxUserNameLength = 50
	MaxTextLength     = 5000
)

var validate = validator.New()

// Frame is the JSON shape exchanged with clients in both directions.
type Frame struct {
	RoomNo     int64  `json:"roomNo" validate:"required,gt=0"`
	UserNo     int64  `json:"userNo" validate:"required,gt=0"`
	UserName   string `json:"userName" validate:"required,max=50"`
	Message    string `json:"message" validate:"required,max=5000"`
	Type       Kind   `json:"type" validate:"omitempty,oneof=CHAT ENTER EXIT"`
	CreateDate string `json:"createDate"`
}

// DecodeFrame parses a client frame into a Message. Invalid UTF-8, unknown
// fields, missing required fields and trailing data are rejected with
// ErrMalformedMessage.
// The client-supplied type and createDate are not trusted and are dropped.
func DecodeFrame(raw []byte) (Message, error) {
	if !utf8.Valid(raw) {
		return Message{}, fmt.Errorf("%w: frame is not valid UTF-8", ErrMalformedMessage)
	}

	var f Frame
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Message{}, fmt.Errorf("%w: trailing data after frame", ErrMalformedMessage)
	}
	if err := validate.Struct(f); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	return Message{
		RoomID: f.RoomNo,
		Sender: Identity{
			UserID:      f.UserNo,
			DisplayName: f.UserName,
		},
		Kind: KindChat,
		Text: f.Message,
	}, nil
}

// ToFrame converts msg to its wire shape.
func ToFrame(msg Message) Frame {
	f := Frame{
		RoomNo:   msg.RoomID,
		UserNo:   msg.Sender.UserID,
		UserName: msg.Sender.DisplayName,
		Message:  msg.Text,
		Type:     msg.Kind,
	}
	if !msg.CreatedAt.IsZero() {
		f.CreateDate = msg.CreatedAt.Format(DateLayout)
	}
	return f
}

// EncodeFrame serializes msg as an outbound frame.
func EncodeFrame(msg Message) ([]byte, error) {
	if !msg.Kind.Valid() {
		return nil, fmt.Errorf("cannot encode message of kind %q", msg.Kind)
	}
	data, err := json.Marshal(ToFrame(msg))
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// ParseDate parses a createDate value back into a time in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
