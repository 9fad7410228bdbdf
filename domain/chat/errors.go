package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedMessage is returned when an inbound frame cannot be decoded.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrPersistence is returned when a room or message write fails.
	ErrPersistence = errors.New("persistence failure")

	// ErrDelivery is returned when a send to one connection fails.
	ErrDelivery = errors.New("delivery failure")

	// ErrRoomNotFound is returned when a room has no backing record.
	ErrRoomNotFound = errors.New("room not found")
)

var (
	// ErrConnectionClosed is returned when sending to a closed connection.
	ErrConnectionClosed = fmt.Errorf("%w: connection closed", ErrDelivery)

	// ErrSlowConsumer is returned when a connection's outbound buffer is full.
	ErrSlowConsumer = fmt.Errorf("%w: outbound buffer full", ErrDelivery)
)
