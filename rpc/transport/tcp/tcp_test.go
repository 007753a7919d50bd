package tcp

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/holtenko/iotdb/lib/consensus"
	"github.com/holtenko/iotdb/rpc/serializer"
)

// echoService answers with fixed responses and records what it saw.
type echoService struct {
	mu         sync.Mutex
	heartbeats int
	elections  int
}

func (s *echoService) HandleHeartbeat(req *consensus.HeartbeatRequest) *consensus.HeartbeatResponse {
	s.mu.Lock()
	s.heartbeats++
	s.mu.Unlock()
	return &consensus.HeartbeatResponse{Term: req.Term, RequireNodeList: true}
}

func (s *echoService) HandleElection(req *consensus.ElectionRequest) *consensus.ElectionResponse {
	s.mu.Lock()
	s.elections++
	s.mu.Unlock()
	return &consensus.ElectionResponse{Term: req.Term, VoteGranted: true}
}

func freePort(t *testing.T) (string, uint16) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("cannot grab a port: %v", err)
	}
	addr := l.Addr().(*net.TCPAddr)
	_ = l.Close()
	return addr.String(), uint16(addr.Port)
}

// TestRequestResponseRoundTrip sends both RPC kinds over a live socket.
func TestRequestResponseRoundTrip(t *testing.T) {
	endpoint, port := freePort(t)
	service := &echoService{}

	srv := NewServer(serializer.NewBinarySerializer())
	if err := srv.Serve(endpoint, service); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	defer srv.Close()

	provider := NewProvider(serializer.NewBinarySerializer(), time.Second)
	defer provider.Close()

	node := &consensus.Node{Host: "127.0.0.1", Port: port}
	client := provider.ConnectNode(node)
	if client == nil {
		t.Fatal("ConnectNode returned nil for a live server")
	}

	heartbeatCh := make(chan *consensus.HeartbeatResponse, 1)
	client.SendHeartbeat(&consensus.HeartbeatRequest{Term: 5, Leader: *node}, func(resp *consensus.HeartbeatResponse, err error) {
		if err != nil {
			t.Errorf("heartbeat: %v", err)
			close(heartbeatCh)
			return
		}
		heartbeatCh <- resp
	})
	select {
	case resp := <-heartbeatCh:
		if resp == nil || resp.Term != 5 || !resp.RequireNodeList {
			t.Errorf("heartbeat response = %+v, want term 5 with RequireNodeList", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat response never arrived")
	}

	voteCh := make(chan *consensus.ElectionResponse, 1)
	client.StartElection(&consensus.ElectionRequest{Term: 6}, func(resp *consensus.ElectionResponse, err error) {
		if err != nil {
			t.Errorf("election: %v", err)
			close(voteCh)
			return
		}
		voteCh <- resp
	})
	select {
	case resp := <-voteCh:
		if resp == nil || !resp.VoteGranted || resp.Term != 6 {
			t.Errorf("election response = %+v, want granted in term 6", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("election response never arrived")
	}
}

// TestConnectNodeUnreachable checks a dead endpoint yields a nil client.
func TestConnectNodeUnreachable(t *testing.T) {
	_, port := freePort(t)
	provider := NewProvider(serializer.NewBinarySerializer(), 100*time.Millisecond)
	defer provider.Close()

	if client := provider.ConnectNode(&consensus.Node{Host: "127.0.0.1", Port: port}); client != nil {
		t.Error("ConnectNode returned a client for a closed port")
	}
}

// TestClientSurvivesServerRestart checks the provider redials after the
// cached connection broke.
func TestClientSurvivesServerRestart(t *testing.T) {
	endpoint, port := freePort(t)
	service := &echoService{}
	node := &consensus.Node{Host: "127.0.0.1", Port: port}

	srv := NewServer(serializer.NewBinarySerializer())
	if err := srv.Serve(endpoint, service); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	provider := NewProvider(serializer.NewBinarySerializer(), time.Second)
	defer provider.Close()

	if provider.ConnectNode(node) == nil {
		t.Fatal("first connect failed")
	}
	_ = srv.Close()

	srv = NewServer(serializer.NewBinarySerializer())
	if err := srv.Serve(endpoint, service); err != nil {
		t.Fatalf("re-Serve: %v", err)
	}
	defer srv.Close()

	// the cached connection is broken; the provider must hand out a working
	// client again within a few attempts
	deadline := time.Now().Add(2 * time.Second)
	for {
		client := provider.ConnectNode(node)
		if client != nil {
			done := make(chan error, 1)
			client.SendHeartbeat(&consensus.HeartbeatRequest{Term: 1, Leader: *node}, func(_ *consensus.HeartbeatResponse, err error) {
				done <- err
			})
			if err := <-done; err == nil {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("provider never recovered after the server restart")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
