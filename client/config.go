package client

import (
	"time"

	"cql-ws/shared"
)

// ClientConfig contains all configuration options for a Session
type ClientConfig struct {
	Address          string         // WebSocket URL of the CQL endpoint (ws:// or wss://)
	CAPath           string         // Path to a PEM-encoded CA bundle; required by ConnectTLS
	UseSubprotocol   bool           // Advertise "cql" in the Sec-WebSocket-Protocol header
	HandshakeTimeout time.Duration  // WebSocket handshake timeout; DefaultWSHandshakeTimeout when zero
	Logger           *shared.Logger // Optional logger; a default is created when nil
}

func (c ClientConfig) handshakeTimeout() time.Duration {
	if c.HandshakeTimeout > 0 {
		return c.HandshakeTimeout
	}
	return DefaultWSHandshakeTimeout
}
