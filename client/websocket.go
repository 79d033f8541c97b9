package client

import (
	"crypto/tls"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/gravitational/trace"
	"go.uber.org/zap"
)

// wsMessage is the unit carried by the pump queues: a WebSocket message
// type plus its payload.
type wsMessage struct {
	messageType int
	data        []byte
}

// dial validates the address and performs the WebSocket upgrade. A nil
// tlsConfig dials in the clear. The gorilla dialer builds the upgrade
// request itself (GET, Host, Connection/Upgrade headers, version 13 and
// a fresh random Sec-WebSocket-Key per connection).
func dial(cfg ClientConfig, tlsConfig *tls.Config) (*websocket.Conn, error) {
	u, err := url.Parse(cfg.Address)
	if err != nil {
		return nil, trace.BadParameter("invalid address %q: %v", cfg.Address, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, trace.BadParameter("address %q must use the ws or wss scheme", cfg.Address)
	}
	if u.Host == "" {
		return nil, trace.BadParameter("empty host in address %q", cfg.Address)
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: cfg.handshakeTimeout(),
		TLSClientConfig:  tlsConfig,
	}
	if cfg.UseSubprotocol {
		dialer.Subprotocols = []string{CQLSubprotocol}
	}

	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, trace.ConnectionProblem(err, "websocket upgrade to %s failed", cfg.Address)
	}
	return conn, nil
}

// pump moves frames between the socket and the engine. The read loop
// exclusively owns the inbound socket half, the write loop the outbound
// half; the two loops share no state beyond the first-error slot and
// synchronize with the engine only through the in/out channels.
type pump struct {
	conn *websocket.Conn
	log  *zap.Logger

	in  chan wsMessage // socket -> engine, closed by the read loop on exit
	out chan wsMessage // engine -> socket, closed by the engine to shut the writer down

	done       chan struct{} // closed when the engine stops consuming input
	writerDone chan struct{} // closed when the write loop exits

	errOnce sync.Once
	err     atomic.Value // error; first loop failure wins
}

func startPump(conn *websocket.Conn, log *zap.Logger) *pump {
	p := &pump{
		conn:       conn,
		log:        log,
		in:         make(chan wsMessage, queueBuffer),
		out:        make(chan wsMessage, queueBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	go p.readLoop()
	go p.writeLoop()
	return p
}

func (p *pump) fail(err error) {
	p.errOnce.Do(func() {
		p.log.Warn("Transport pump failed", zap.Error(err))
		p.err.Store(err)
	})
}

// fatalErr returns the first error recorded by either loop, if any.
func (p *pump) fatalErr() error {
	if err, ok := p.err.Load().(error); ok {
		return err
	}
	return nil
}

// readLoop pulls frames off the socket and forwards them inward in
// arrival order. It exits cleanly on a peer close frame or once the
// engine stops consuming; anything other than a binary frame is an
// unrecoverable protocol violation.
func (p *pump) readLoop() {
	defer close(p.in)
	for {
		messageType, data, err := p.conn.ReadMessage()
		if err != nil {
			if _, ok := err.(*websocket.CloseError); ok {
				p.log.Debug("Peer closed the tunnel")
				return
			}
			select {
			case <-p.done:
				// The engine tore the connection down; the read
				// error is a consequence, not a failure.
				return
			default:
			}
			p.fail(trace.ConnectionProblem(err, "reading from the tunnel"))
			return
		}
		if messageType != websocket.BinaryMessage {
			p.fail(trace.BadParameter("protocol violation: received message type %d, only binary frames are valid", messageType))
			return
		}
		select {
		case p.in <- wsMessage{messageType: messageType, data: data}:
		case <-p.done:
			return
		}
	}
}

// writeLoop drains the outbound queue onto the socket in FIFO order.
// When the engine closes the queue, the loop announces a clean close to
// the peer and exits; a close handshake already completed by the peer
// (ErrCloseSent) is tolerated.
func (p *pump) writeLoop() {
	defer close(p.writerDone)
	for msg := range p.out {
		if err := p.conn.WriteMessage(msg.messageType, msg.data); err != nil {
			p.fail(trace.ConnectionProblem(err, "writing to the tunnel"))
			return
		}
	}
	err := p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil && err != websocket.ErrCloseSent {
		p.fail(trace.ConnectionProblem(err, "closing the tunnel"))
	}
}
