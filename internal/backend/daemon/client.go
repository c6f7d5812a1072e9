package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
)

// Default connection settings for the local daemon.
const (
	DefaultSocket  = "/var/run/libvirt/libvirt-sock"
	DefaultTimeout = 5 * time.Second
)

// dial opens a go-libvirt connection over the daemon's UNIX socket.
//
// If socketPath is empty, defaults to DefaultSocket.
// If timeout is zero, defaults to DefaultTimeout.
func dial(socketPath string, timeout time.Duration) (*libvirt.Libvirt, error) {
	if socketPath == "" {
		socketPath = DefaultSocket
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	dialer := dialers.NewLocal(
		dialers.WithSocket(socketPath),
		dialers.WithLocalTimeout(timeout),
	)

	l := libvirt.NewWithDialer(dialer)
	if err := l.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to daemon at %s: %w", socketPath, err)
	}
	return l, nil
}

// dialContext is dial with cancellation. A connection that completes after
// ctx is done is closed.
func dialContext(ctx context.Context, socketPath string, timeout time.Duration) (*libvirt.Libvirt, error) {
	type result struct {
		l   *libvirt.Libvirt
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		l, err := dial(socketPath, timeout)
		resultCh <- result{l: l, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if res := <-resultCh; res.err == nil {
				_ = res.l.Disconnect()
			}
		}()
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		return res.l, res.err
	}
}

// ping verifies the connection is still alive.
func ping(c libvirtClient) error {
	if c == nil {
		return fmt.Errorf("client not connected")
	}
	if _, err := c.ConnectGetLibVersion(); err != nil {
		return fmt.Errorf("daemon connection is dead: %w", err)
	}
	return nil
}
