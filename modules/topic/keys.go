// Package topic derives logical channel keys and publishes encoded frames
// to whichever broker backs the publish/subscribe delivery path.
package topic

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	roomPrefix = "/topic/room/"

	// NoticeKey is the well-known key for site-wide notices.
	NoticeKey = "/topic/notice"
)

// RoomKey returns the topic key for roomID.
func RoomKey(roomID int64) string {
	return roomPrefix + strconv.FormatInt(roomID, 10)
}

// ParseRoomKey extracts the room identifier from a key built by RoomKey.
func ParseRoomKey(key string) (int64, error) {
	rest, ok := strings.CutPrefix(key, roomPrefix)
	if !ok {
		return 0, fmt.Errorf("not a room topic: %q", key)
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid room id in topic %q", key)
	}
	return id, nil
}

// Valid reports whether key is a notice or room topic.
func Valid(key string) bool {
	if key == NoticeKey {
		return true
	}
	_, err := ParseRoomKey(key)
	return err == nil
}
