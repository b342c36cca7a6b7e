// Package hub implements the room-scoped broadcast hub that pushes live state
// changes to connected displays. Rooms are ephemeral in-memory membership
// sets; events are delivered to current members only and never stored.
package hub

import (
	"errors"
	"fmt"
	"strings"
)

// RoomKind is the closed set of broadcast channel kinds.
type RoomKind string

const (
	// RoomKindLocation scopes events to one restaurant location.
	RoomKindLocation RoomKind = "location"
	// RoomKindKitchenStation scopes events to one kitchen station display.
	RoomKindKitchenStation RoomKind = "kitchen-station"
	// RoomKindTable scopes events to one table.
	RoomKindTable RoomKind = "table"
)

// Valid returns true for a known room kind.
func (k RoomKind) Valid() bool {
	return k == RoomKindLocation || k == RoomKindKitchenStation || k == RoomKindTable
}

// Room is a logical broadcast channel keyed by (kind, id).
type Room struct {
	Kind RoomKind
	ID   string
}

// LocationRoom returns the room for one location's displays.
func LocationRoom(locationID string) Room {
	return Room{Kind: RoomKindLocation, ID: locationID}
}

// KitchenStationRoom returns the room for one kitchen station display.
func KitchenStationRoom(stationID string) Room {
	return Room{Kind: RoomKindKitchenStation, ID: stationID}
}

// TableRoom returns the room for one table's displays.
func TableRoom(tableID string) Room {
	return Room{Kind: RoomKindTable, ID: tableID}
}

// String renders the wire key clients use to join: "location:<id>".
func (r Room) String() string {
	return string(r.Kind) + ":" + r.ID
}

// ErrBadRoomKey is returned when a join/leave key does not parse.
var ErrBadRoomKey = errors.New("bad room key")

// ParseRoom parses a wire key of the form "<kind>:<id>".
func ParseRoom(key string) (Room, error) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok || id == "" {
		return Room{}, fmt.Errorf("%w: %q", ErrBadRoomKey, key)
	}
	k := RoomKind(kind)
	if !k.Valid() {
		return Room{}, fmt.Errorf("%w: unknown kind %q", ErrBadRoomKey, kind)
	}
	return Room{Kind: k, ID: id}, nil
}
