package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"

	"cql-ws/client"
	"cql-ws/shared"
)

func main() {
	// .env is optional; flags and plain environment variables take over.
	_ = godotenv.Load()

	addr := flag.String("addr", shared.GetEnvOrDefault("CQL_WS_ADDR", "ws://localhost:8080"), "WebSocket URL of the CQL endpoint")
	caPath := flag.String("ca", shared.GetEnvOrDefault("CQL_WS_CA", ""), "PEM CA bundle path; enables TLS when set")
	useSubprotocol := flag.Bool("subprotocol", shared.GetEnvBoolOrDefault("CQL_WS_SUBPROTOCOL", false), "advertise the cql Sec-WebSocket-Protocol header")
	timeout := flag.Duration("timeout", shared.GetEnvDurationOrDefault("CQL_WS_TIMEOUT", client.DefaultWSHandshakeTimeout), "WebSocket handshake timeout")
	query := flag.String("query", "SELECT keyspace_name FROM system_schema.keyspaces", "CQL query to run")
	flag.Parse()

	logger, err := shared.NewLoggerFromEnv("demo-client")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg := client.ClientConfig{
		Address:          *addr,
		CAPath:           *caPath,
		UseSubprotocol:   *useSubprotocol,
		HandshakeTimeout: *timeout,
		Logger:           logger,
	}

	var session *client.Session
	if *caPath != "" {
		session, err = client.ConnectTLS(cfg)
	} else {
		session, err = client.Connect(cfg)
	}
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", *addr, err)
	}
	defer session.Close()

	rows, err := session.Query(*query)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	fmt.Printf("%d row(s)\n", len(rows))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = fmt.Sprintf("%v", value)
		}
		fmt.Println(strings.Join(cells, " | "))
	}
}
