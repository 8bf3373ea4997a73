// Package nats publishes runtime events (dead letters, supervision
// directives) to NATS subjects.
package nats

import (
	"os"
	"sync"

	natsgo "github.com/nats-io/nats.go"
)

type CloseFunc = func()

// Connector opens a connection and returns a func that releases it.
type Connector func() (nc *natsgo.Conn, close CloseFunc, err error)

// Shared hands the same underlying connection to every caller and closes
// it once the last lease is released.
func Shared(connect Connector) Connector {
	s := &sharedConn{connect: connect}
	return s.lease
}

type sharedConn struct {
	connect Connector

	mu     sync.Mutex
	nc     *natsgo.Conn
	close  CloseFunc
	leases int
}

func (s *sharedConn) lease() (*natsgo.Conn, CloseFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nc == nil {
		nc, closeConn, err := s.connect()
		if err != nil {
			return nil, nil, err
		}
		s.nc, s.close = nc, closeConn
	}
	s.leases++
	var once sync.Once
	return s.nc, func() { once.Do(s.release) }, nil
}

func (s *sharedConn) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leases--
	if s.leases == 0 && s.nc != nil {
		s.close()
		s.nc, s.close = nil, nil
	}
}

func ConnectURL(natsURL string, opts ...natsgo.Option) Connector {
	opts = append([]natsgo.Option{
		natsgo.Name("dispatch"),
		natsgo.MaxReconnects(3),
	}, opts...)
	return func() (*natsgo.Conn, CloseFunc, error) {
		nc, err := natsgo.Connect(natsURL, opts...)
		if err != nil {
			return nil, nil, err
		}
		return nc, func() { nc.Close() }, nil
	}
}

// ConnectDefault connects to $NATS_URL, falling back to the NATS default URL.
func ConnectDefault(opts ...natsgo.Option) Connector {
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		return ConnectURL(natsURL, opts...)
	}
	return ConnectURL(natsgo.DefaultURL, opts...)
}
