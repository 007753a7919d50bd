// Package tcp provides the TCP transport: length-prefixed frames carrying
// serialized consensus messages, one reader goroutine per connection and
// request-id correlation on the client side.
package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/holtenko/iotdb/rpc/serializer"
	"github.com/holtenko/iotdb/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger("rpc")

// frame layout: 8 byte request id, 4 byte payload length, payload
const frameHeaderSize = 12

// maxFrameSize bounds a single message; membership lists stay far below it.
const maxFrameSize = 4 * 1024 * 1024

func writeFrame(w io.Writer, id uint64, payload []byte) error {
	header := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint64(header[:8], id)
	binary.LittleEndian.PutUint32(header[8:], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) (uint64, []byte, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	id := binary.LittleEndian.Uint64(header[:8])
	size := binary.LittleEndian.Uint32(header[8:])
	if size > maxFrameSize {
		return 0, nil, fmt.Errorf("tcp: frame of %d bytes exceeds the limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return id, payload, nil
}

// --------------------------------------------------------------------------
// Server
// --------------------------------------------------------------------------

type server struct {
	serializer serializer.ISerializer

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   atomic.Bool
	wg       sync.WaitGroup
}

// NewServer creates a TCP server speaking the given serialization.
func NewServer(s serializer.ISerializer) transport.Server {
	return &server{
		serializer: s,
		conns:      map[net.Conn]struct{}{},
	}
}

func (srv *server) Serve(endpoint string, service transport.Service) error {
	listener, err := net.Listen("tcp", endpoint)
	if err != nil {
		return fmt.Errorf("tcp: cannot listen on %s: %w", endpoint, err)
	}
	srv.mu.Lock()
	srv.listener = listener
	srv.mu.Unlock()

	plog.Infof("consensus rpc listening on %s (%s)", endpoint, srv.serializer.GetName())
	srv.wg.Add(1)
	go srv.acceptLoop(listener, service)
	return nil
}

func (srv *server) acceptLoop(listener net.Listener, service transport.Service) {
	defer srv.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			if !srv.closed.Load() {
				plog.Errorf("accept failed: %v", err)
			}
			return
		}
		srv.mu.Lock()
		srv.conns[conn] = struct{}{}
		srv.mu.Unlock()

		srv.wg.Add(1)
		go srv.handleConn(conn, service)
	}
}

func (srv *server) handleConn(conn net.Conn, service transport.Service) {
	defer srv.wg.Done()
	defer func() {
		srv.mu.Lock()
		delete(srv.conns, conn)
		srv.mu.Unlock()
		_ = conn.Close()
	}()

	var writeMu sync.Mutex
	for {
		id, payload, err := readFrame(conn)
		if err != nil {
			if !srv.closed.Load() && !errors.Is(err, io.EOF) {
				plog.Warningf("connection from %s broke: %v", conn.RemoteAddr(), err)
			}
			return
		}
		go srv.dispatch(conn, &writeMu, service, id, payload)
	}
}

func (srv *server) dispatch(conn net.Conn, writeMu *sync.Mutex, service transport.Service, id uint64, payload []byte) {
	req, err := srv.serializer.Unmarshal(payload)
	if err != nil {
		plog.Errorf("cannot decode request %d from %s: %v", id, conn.RemoteAddr(), err)
		return
	}

	var resp *serializer.Message
	switch req.Kind {
	case serializer.KindHeartbeatRequest:
		resp = &serializer.Message{
			Kind:              serializer.KindHeartbeatResponse,
			HeartbeatResponse: service.HandleHeartbeat(req.HeartbeatRequest),
		}
	case serializer.KindElectionRequest:
		resp = &serializer.Message{
			Kind:             serializer.KindElectionResponse,
			ElectionResponse: service.HandleElection(req.ElectionRequest),
		}
	default:
		plog.Errorf("unexpected request kind %s from %s", req.Kind, conn.RemoteAddr())
		return
	}

	data, err := srv.serializer.Marshal(resp)
	if err != nil {
		plog.Errorf("cannot encode response %d: %v", id, err)
		return
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := writeFrame(conn, id, data); err != nil {
		plog.Warningf("cannot write response %d to %s: %v", id, conn.RemoteAddr(), err)
	}
}

func (srv *server) Close() error {
	if !srv.closed.CompareAndSwap(false, true) {
		return nil
	}
	srv.mu.Lock()
	if srv.listener != nil {
		_ = srv.listener.Close()
	}
	for conn := range srv.conns {
		_ = conn.Close()
	}
	srv.mu.Unlock()
	srv.wg.Wait()
	return nil
}
