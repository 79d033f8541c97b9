package client

import (
	"time"

	"github.com/datastax/go-cassandra-native-protocol/primitive"
)

// Timeout Constants
const (
	DefaultWSHandshakeTimeout = 30 * time.Second // WebSocket handshake timeout used when the config leaves it unset
)

// Wire Protocol Constants
const (
	CQLSubprotocol  = "cql"                      // Sec-WebSocket-Protocol value advertised when enabled
	protocolVersion = primitive.ProtocolVersion4 // native protocol version requested on every envelope
	streamID        = 0                          // one request in flight at a time, stream 0 only
)

// Queue Constants
const (
	queueBuffer = 16 // per-direction channel buffer between the pump and the engine
)
