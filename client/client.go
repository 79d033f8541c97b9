package client

import (
	"crypto/tls"
	"sync"
	"sync/atomic"

	"github.com/datastax/go-cassandra-native-protocol/frame"
	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/datastax/go-cassandra-native-protocol/primitive"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/gravitational/trace"
	"go.uber.org/zap"
)

// Session state constants for the atomic state machine
const (
	StateConnecting = iota
	StateHandshaking
	StateReady
	StateAwaitingResult
	StateClosed
)

// Session is a single CQL connection tunnelled through a WebSocket.
// Replies carry no correlation: a reply is matched to a request purely
// by arrival order, so at most one request may be in flight and a
// Session must not be shared by concurrent callers. There is no
// automatic retry or reconnection; once a protocol violation or
// transport failure is recorded the Session is unusable and the caller
// must build a new one.
type Session struct {
	sessionID string
	log       *zap.Logger
	pump      *pump

	state     int64 // atomic, State* constants
	closeOnce sync.Once
}

// Connect establishes a plain (non-TLS) session and runs the startup
// handshake. On success the session is ready for queries.
func Connect(cfg ClientConfig) (*Session, error) {
	return connect(cfg, nil)
}

// ConnectTLS establishes a session over TLS. The server certificate
// must chain to the CAs loaded from cfg.CAPath, but its hostname is not
// required to match the dialed address (see verifyIgnoringName).
func ConnectTLS(cfg ClientConfig) (*Session, error) {
	roots, err := LoadTrustStore(cfg.CAPath)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return connect(cfg, newTLSConfig(roots))
}

func connect(cfg ClientConfig, tlsConfig *tls.Config) (*Session, error) {
	sessionID := uuid.NewString()
	log := GetLogger(cfg).WithSession(sessionID)

	log.Debug("Connecting", zap.String("address", cfg.Address), zap.Bool("tls", tlsConfig != nil))
	conn, err := dial(cfg, tlsConfig)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	s := &Session{
		sessionID: sessionID,
		log:       log,
		pump:      startPump(conn, log),
		state:     StateHandshaking,
	}
	if err := s.startup(); err != nil {
		s.Close()
		return nil, trace.Wrap(err)
	}
	return s, nil
}

// startup sends a STARTUP envelope and waits for the single reply. The
// server answering AUTHENTICATE is recognized but not supported; any
// other non-READY reply is a protocol violation.
func (s *Session) startup() error {
	data, err := encodeEnvelope(message.NewStartup())
	if err != nil {
		return trace.Wrap(err)
	}
	if err := s.send(data); err != nil {
		return trace.Wrap(err)
	}

	reply, err := s.awaitEnvelope()
	if err != nil {
		return trace.Wrap(err)
	}
	switch body := reply.Body.Message.(type) {
	case *message.Ready:
		atomic.StoreInt64(&s.state, StateReady)
		s.log.Debug("Session ready")
		return nil
	case *message.Authenticate:
		return trace.NotImplemented("server requested authentication via %s, which is not supported", body.Authenticator)
	default:
		return trace.BadParameter("protocol violation: expected READY or AUTHENTICATE in reply to STARTUP, got %T", body)
	}
}

// Query runs a CQL query with default options and returns the full
// result table: one slice per row, values typed per the server's column
// metadata. Only valid while the session is ready.
func (s *Session) Query(cql string) ([][]any, error) {
	if !atomic.CompareAndSwapInt64(&s.state, StateReady, StateAwaitingResult) {
		return nil, trace.BadParameter("session is not ready for queries")
	}
	defer atomic.CompareAndSwapInt64(&s.state, StateAwaitingResult, StateReady)

	data, err := encodeEnvelope(&message.Query{
		Query:   cql,
		Options: &message.QueryOptions{Consistency: primitive.ConsistencyLevelOne},
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if err := s.send(data); err != nil {
		return nil, trace.Wrap(err)
	}

	reply, err := s.awaitEnvelope()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	rows, ok := reply.Body.Message.(*message.RowsResult)
	if !ok {
		return nil, trace.BadParameter("protocol violation: expected a rows result, got %T", reply.Body.Message)
	}
	table, err := decodeRows(rows, reply.Header.Version)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	s.log.Debug("Query complete", zap.Int("rows", len(table)))
	return table, nil
}

// SendRawMessage pushes a raw WebSocket message to the peer, bypassing
// the envelope codec and the state machine. Intended for exercising
// non-standard or malformed traffic; interleaving it with Query calls
// requires caller discipline.
func (s *Session) SendRawMessage(messageType int, data []byte) error {
	return s.sendMessage(wsMessage{messageType: messageType, data: data})
}

// WaitForRawMessage returns the next inbound frame without decoding it.
func (s *Session) WaitForRawMessage() (int, []byte, error) {
	msg, err := s.awaitMessage()
	if err != nil {
		return 0, nil, trace.Wrap(err)
	}
	return msg.messageType, msg.data, nil
}

// Close shuts the session down: the writer announces a clean close to
// the peer, both pump loops exit and the connection is torn down. Safe
// to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		atomic.StoreInt64(&s.state, StateClosed)
		close(s.pump.out)  // the writer sends a close frame and exits
		close(s.pump.done) // unblocks the reader if the queue is stalled
		<-s.pump.writerDone
		s.pump.conn.Close()
		s.log.Debug("Session closed")
	})
	return nil
}

func (s *Session) send(data []byte) error {
	return s.sendMessage(wsMessage{messageType: websocket.BinaryMessage, data: data})
}

func (s *Session) sendMessage(msg wsMessage) error {
	if atomic.LoadInt64(&s.state) == StateClosed {
		return trace.BadParameter("session is closed")
	}
	if err := s.pump.fatalErr(); err != nil {
		return trace.Wrap(err)
	}
	select {
	case s.pump.out <- msg:
		return nil
	case <-s.pump.writerDone:
		if err := s.pump.fatalErr(); err != nil {
			return trace.Wrap(err)
		}
		return trace.ConnectionProblem(nil, "connection closed")
	}
}

// awaitMessage blocks until the next inbound frame. A drained, closed
// inbound queue means the reader exited: the recorded fatal error, if
// any, is surfaced here.
func (s *Session) awaitMessage() (wsMessage, error) {
	msg, ok := <-s.pump.in
	if !ok {
		if err := s.pump.fatalErr(); err != nil {
			return wsMessage{}, trace.Wrap(err)
		}
		return wsMessage{}, trace.ConnectionProblem(nil, "connection closed before a reply arrived")
	}
	return msg, nil
}

func (s *Session) awaitEnvelope() (*frame.Frame, error) {
	msg, err := s.awaitMessage()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return decodeEnvelope(msg.data)
}
