package stream

import (
	"time"

	"github.com/nats-io/nats.go"
)

// Connect подключается к NATS с бесконечным переподключением
func Connect(url, name string) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
}
