package comm

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// CreationFunc is a function which returns a new "connection" to something
// a closure should be used to encapsulate the variables and functions needed
type CreationFunc func() (io.ReadWriteCloser, error)

// Pool is a communication pool which holds one or more connections to a device
// that will be closed if they are not in use, and re-opened as needed.
// it is concurrent safe.  Pools must be created with NewPool.
type Pool struct {
	maxSize int                     // maximum number of connections, == cap(conns)
	timeout time.Duration           // time after the last Put to free idle connections
	conns   chan io.ReadWriteCloser // idle connections
	tokens  chan struct{}           // one token per connection that may exist
	maker   CreationFunc

	mu    sync.Mutex
	timer *time.Timer
}

// NewPool creates a new pool holding at most maxSize connections, which are
// closed after timeout of disuse
func NewPool(maxSize int, timeout time.Duration, maker CreationFunc) *Pool {
	p := &Pool{
		maxSize: maxSize,
		timeout: timeout,
		conns:   make(chan io.ReadWriteCloser, maxSize),
		tokens:  make(chan struct{}, maxSize),
		maker:   maker,
	}
	for i := 0; i < maxSize; i++ {
		p.tokens <- struct{}{}
	}
	return p
}

// Get retrieves a communicator from the pool, blocking until one is
// available if all are in use.  It is guaranteed that there is no contestion
// for the ReadWriter.
//
// When done with the communicator, return it with Put(), or discard it with
// Destroy() if it has become no good (e.g., all calls error).
// ReturnWithError does the right one of the two.
//
// If the error from Get is not nil, you must not return it
// to the pool, or you will cause a panic.
func (p *Pool) Get() (io.ReadWriter, error) {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.mu.Unlock()

	select {
	case c := <-p.conns:
		return c, nil
	default:
	}
	select {
	case c := <-p.conns:
		return c, nil
	case <-p.tokens:
		c, err := p.maker()
		if err != nil {
			p.tokens <- struct{}{}
			return nil, err
		}
		return c, nil
	}
}

// Put restores a communicator to the pool.  It may be reused, or will be
// automatically freed after it has been idle for the pool's timeout.
func (p *Pool) Put(rw io.ReadWriter) {
	rwc := rw.(io.ReadWriteCloser)
	p.conns <- rwc
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.timeout, p.reclaim)
}

// Destroy immediately frees a communicator from the pool.  This should be used
// instead of Put if the communicator has gone bad.
func (p *Pool) Destroy(rw io.ReadWriter) {
	rwc := rw.(io.ReadWriteCloser)
	rwc.Close()
	p.tokens <- struct{}{}
}

// ReturnWithError returns the communicator to the pool if err is nil or a
// protocol-level error, and destroys it if err looks like the link died
func (p *Pool) ReturnWithError(rw io.ReadWriter, err error) {
	if rw == nil {
		return
	}
	if linkBroken(err) {
		p.Destroy(rw)
		return
	}
	p.Put(rw)
}

func linkBroken(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}

// Size returns the number of connections in the pool, or given out from it
func (p *Pool) Size() int {
	return p.maxSize - len(p.tokens)
}

// Idle returns the number of open connections waiting in the pool
func (p *Pool) Idle() int {
	return len(p.conns)
}

// reclaim closes every idle connection
func (p *Pool) reclaim() {
	for {
		select {
		case c := <-p.conns:
			c.Close()
			p.tokens <- struct{}{}
		default:
			return
		}
	}
}
