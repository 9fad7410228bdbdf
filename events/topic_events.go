package events

import (
	"encoding/json"

	"github.com/go-monolith/mono/pkg/helper"
)

// TopicMessageEvent carries an encoded frame published on a logical topic.
type TopicMessageEvent struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Event definitions for topic dispatch.
var (
	TopicMessageV1 = helper.EventDefinition[TopicMessageEvent](
		"chat",
		"TopicMessage",
		"v1",
	)
)
