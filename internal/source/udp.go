package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"camsync/internal/logger"
	"camsync/internal/synchronizer"
)

const maxDatagram = 2048

var (
	jpegHeader = []byte{0xFF, 0xD8}
	jpegFooter = []byte{0xFF, 0xD9}
)

// UDP listens for JPEG frames pushed by a network camera, split across
// datagrams. A frame starts with a datagram carrying the JPEG header and ends
// with one carrying the footer. On each token the source delivers the next
// complete frame; frames that arrive while no token is outstanding are dropped.
type UDP struct {
	*Base
	conn   *net.UDPConn
	frames chan []byte
}

func NewUDP(port synchronizer.Port, address string, logger *logger.Logger) (*UDP, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address %s: %w", address, err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP %s: %w", address, err)
	}

	logger.Info("UDP camera at port %d listening on %s", port, conn.LocalAddr())
	return &UDP{
		Base:   NewBase(port, logger),
		conn:   conn,
		frames: make(chan []byte, 1),
	}, nil
}

// Addr is the address the source listens on.
func (u *UDP) Addr() net.Addr {
	return u.conn.LocalAddr()
}

// Run is the capture loop. It closes the reel and the socket when ctx is done.
func (u *UDP) Run(ctx context.Context) error {
	defer u.Finish()

	go func() {
		<-ctx.Done()
		u.conn.Close()
	}()
	go u.receive()

	for {
		if err := u.Await(ctx); err != nil {
			return nil
		}

		// Anything received before the token is stale.
		select {
		case <-u.frames:
		default:
		}

		start := time.Now()
		var frame []byte
		select {
		case frame = <-u.frames:
		case <-ctx.Done():
			return nil
		}
		end := time.Now()

		capture := synchronizer.Capture{Time: Midpoint(start, end), Payload: frame}
		if err := u.Publish(ctx, capture); err != nil {
			return nil
		}
	}
}

func (u *UDP) Close() error {
	return u.conn.Close()
}

func (u *UDP) receive() {
	buffer := make([]byte, maxDatagram)
	var imgBuffer bytes.Buffer

	for {
		n, _, err := u.conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			u.logger.Error("Error reading UDP packet on port %d: %v", u.port, err)
			continue
		}

		data := buffer[:n]
		if bytes.HasPrefix(data, jpegHeader) {
			imgBuffer.Reset()
		}
		imgBuffer.Write(data)

		if bytes.HasSuffix(data, jpegFooter) {
			frame := make([]byte, imgBuffer.Len())
			copy(frame, imgBuffer.Bytes())
			imgBuffer.Reset()
			u.offer(frame)
		}
	}
}

// offer keeps only the newest complete frame.
func (u *UDP) offer(frame []byte) {
	select {
	case u.frames <- frame:
		return
	default:
	}
	select {
	case <-u.frames:
	default:
	}
	select {
	case u.frames <- frame:
	default:
	}
}
