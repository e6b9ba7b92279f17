package engine

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

const readChunkSize = 4096

// link is one established connection and its reader goroutine.
type link struct {
	id    string
	conn  net.Conn
	start time.Time

	chunks chan []byte
	errs   chan error
	done   chan struct{}
	once   sync.Once
}

func startLink(conn net.Conn, start time.Time) *link {
	l := &link{
		id:     uuid.NewString(),
		conn:   conn,
		start:  start,
		chunks: make(chan []byte, 16),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go l.read()
	return l
}

func (l *link) read() {
	buf := make([]byte, readChunkSize)
	for {
		n, err := l.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case l.chunks <- chunk:
			case <-l.done:
				return
			}
		}
		if err != nil {
			select {
			case l.errs <- err:
			case <-l.done:
			}
			return
		}
	}
}

func (l *link) write(p []byte, timeout time.Duration) (int, error) {
	_ = l.conn.SetWriteDeadline(time.Now().Add(timeout))
	return l.conn.Write(p)
}

func (l *link) close() {
	l.once.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
}
