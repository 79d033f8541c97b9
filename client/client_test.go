package client

import (
	"bytes"
	"testing"

	"github.com/datastax/go-cassandra-native-protocol/datacodec"
	"github.com/datastax/go-cassandra-native-protocol/datatype"
	"github.com/datastax/go-cassandra-native-protocol/frame"
	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/gorilla/websocket"
	"github.com/gravitational/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readTestEnvelope decodes the next binary frame from the server side of
// a fixture connection.
func readTestEnvelope(t *testing.T, conn *websocket.Conn) *frame.Frame {
	t.Helper()
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		t.Errorf("Fixture server failed to read: %v", err)
		return nil
	}
	assert.Equal(t, websocket.BinaryMessage, messageType)
	f, err := frameCodec.DecodeFrame(bytes.NewReader(data))
	if err != nil {
		t.Errorf("Fixture server failed to decode an envelope: %v", err)
		return nil
	}
	return f
}

// writeTestEnvelope encodes msg on the request's stream and sends it as
// a binary frame.
func writeTestEnvelope(t *testing.T, conn *websocket.Conn, streamId int16, msg message.Message) {
	t.Helper()
	var buf bytes.Buffer
	if err := frameCodec.EncodeFrame(frame.NewFrame(protocolVersion, streamId, msg), &buf); err != nil {
		t.Errorf("Fixture server failed to encode an envelope: %v", err)
		return
	}
	assert.NoError(t, conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()))
}

func encodeTestValue(t *testing.T, codec datacodec.Codec, value any) message.Column {
	t.Helper()
	data, err := codec.Encode(value, protocolVersion)
	assert.NoError(t, err)
	return data
}

// answerStartup consumes the STARTUP envelope and replies with msg.
func answerStartup(t *testing.T, conn *websocket.Conn, msg message.Message) *frame.Frame {
	req := readTestEnvelope(t, conn)
	if req == nil {
		return nil
	}
	assert.IsType(t, &message.Startup{}, req.Body.Message)
	writeTestEnvelope(t, conn, req.Header.StreamId, msg)
	return req
}

func fixtureRows(t *testing.T) *message.RowsResult {
	return &message.RowsResult{
		Metadata: &message.RowsMetadata{
			ColumnCount: 2,
			Columns: []*message.ColumnMetadata{
				{Keyspace: "ks", Table: "t", Name: "id", Index: 0, Type: datatype.Int},
				{Keyspace: "ks", Table: "t", Name: "name", Index: 1, Type: datatype.Varchar},
			},
		},
		Data: message.RowSet{
			message.Row{encodeTestValue(t, datacodec.Int, int32(1)), encodeTestValue(t, datacodec.Varchar, "alice")},
			message.Row{encodeTestValue(t, datacodec.Int, int32(2)), encodeTestValue(t, datacodec.Varchar, "bob")},
			message.Row{encodeTestValue(t, datacodec.Int, int32(3)), encodeTestValue(t, datacodec.Varchar, "carol")},
		},
	}
}

func TestConnectAndQuery(t *testing.T) {
	srv := newWSTestServer(t, func(t *testing.T, conn *websocket.Conn) {
		if answerStartup(t, conn, &message.Ready{}) == nil {
			return
		}

		req := readTestEnvelope(t, conn)
		if req == nil {
			return
		}
		query, ok := req.Body.Message.(*message.Query)
		if assert.True(t, ok, "expected a QUERY envelope, got %T", req.Body.Message) {
			assert.Equal(t, "SELECT * FROM t", query.Query)
		}
		writeTestEnvelope(t, conn, req.Header.StreamId, fixtureRows(t))

		// Wait for the client's close frame.
		conn.ReadMessage()
	})

	session, err := Connect(ClientConfig{Address: wsURL(srv), UseSubprotocol: true})
	require.NoError(t, err)
	defer session.Close()

	table, err := session.Query("SELECT * FROM t")
	require.NoError(t, err)
	require.Equal(t, [][]any{
		{int32(1), "alice"},
		{int32(2), "bob"},
		{int32(3), "carol"},
	}, table)
}

func TestConnectAuthenticateNotSupported(t *testing.T) {
	srv := newWSTestServer(t, func(t *testing.T, conn *websocket.Conn) {
		answerStartup(t, conn, &message.Authenticate{
			Authenticator: "org.apache.cassandra.auth.PasswordAuthenticator",
		})
		conn.ReadMessage()
	})

	_, err := Connect(ClientConfig{Address: wsURL(srv)})
	require.Error(t, err)
	require.True(t, trace.IsNotImplemented(err), "expected a not-implemented error, got %v", err)
}

func TestConnectUnexpectedHandshakeReply(t *testing.T) {
	srv := newWSTestServer(t, func(t *testing.T, conn *websocket.Conn) {
		answerStartup(t, conn, &message.VoidResult{})
		conn.ReadMessage()
	})

	_, err := Connect(ClientConfig{Address: wsURL(srv)})
	require.Error(t, err)
	require.True(t, trace.IsBadParameter(err), "expected a protocol violation, got %v", err)
}

func TestQueryUnexpectedReply(t *testing.T) {
	srv := newWSTestServer(t, func(t *testing.T, conn *websocket.Conn) {
		if answerStartup(t, conn, &message.Ready{}) == nil {
			return
		}
		req := readTestEnvelope(t, conn)
		if req == nil {
			return
		}
		writeTestEnvelope(t, conn, req.Header.StreamId, &message.VoidResult{})
		conn.ReadMessage()
	})

	session, err := Connect(ClientConfig{Address: wsURL(srv)})
	require.NoError(t, err)
	defer session.Close()

	_, err = session.Query("SELECT * FROM t")
	require.Error(t, err)
	require.True(t, trace.IsBadParameter(err), "expected a protocol violation, got %v", err)
}

func TestQueryAfterCloseFails(t *testing.T) {
	srv := newWSTestServer(t, func(t *testing.T, conn *websocket.Conn) {
		answerStartup(t, conn, &message.Ready{})
		conn.ReadMessage()
	})

	session, err := Connect(ClientConfig{Address: wsURL(srv)})
	require.NoError(t, err)
	require.NoError(t, session.Close())

	_, err = session.Query("SELECT * FROM t")
	require.Error(t, err)
	require.True(t, trace.IsBadParameter(err))
}

func TestRawMessageRoundTrip(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	srv := newWSTestServer(t, func(t *testing.T, conn *websocket.Conn) {
		if answerStartup(t, conn, &message.Ready{}) == nil {
			return
		}
		// Echo the raw frame back untouched.
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("Fixture server failed to read the raw frame: %v", err)
			return
		}
		assert.NoError(t, conn.WriteMessage(messageType, data))
		conn.ReadMessage()
	})

	session, err := Connect(ClientConfig{Address: wsURL(srv)})
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.SendRawMessage(websocket.BinaryMessage, payload))
	messageType, data, err := session.WaitForRawMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, messageType)
	require.Equal(t, payload, data)
}

func TestConnectTLSBadTrustStorePath(t *testing.T) {
	_, err := ConnectTLS(ClientConfig{
		Address: "wss://localhost:1",
		CAPath:  "/nonexistent/ca.pem",
	})
	require.Error(t, err)
}
