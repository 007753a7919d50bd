package serializer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/holtenko/iotdb/lib/consensus"
)

// --------------------------------------------------------------------------
// Binary serializer (default)
// --------------------------------------------------------------------------

// binaryImpl is a compact little-endian encoding with explicit field order.
type binaryImpl struct{}

// NewBinarySerializer creates the binary serializer.
func NewBinarySerializer() ISerializer {
	return &binaryImpl{}
}

func (s *binaryImpl) GetName() string {
	return "binary"
}

func (s *binaryImpl) Marshal(m *Message) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(m.Kind))

	switch m.Kind {
	case KindHeartbeatRequest:
		req := m.HeartbeatRequest
		writeInt64(&buf, req.Term)
		writeInt64(&buf, req.CommitLogIndex)
		writeNode(&buf, req.Leader)
		writeBool(&buf, req.RequireIdentifier)
		writeBool(&buf, req.RegenerateIdentifier)
		writeBool(&buf, req.NodeSet != nil)
		if req.NodeSet != nil {
			writeUint32(&buf, uint32(len(req.NodeSet)))
			for _, n := range req.NodeSet {
				writeNode(&buf, n)
			}
		}
	case KindHeartbeatResponse:
		resp := m.HeartbeatResponse
		writeInt64(&buf, resp.Term)
		writeNode(&buf, resp.Follower)
		writeBool(&buf, resp.RequireNodeList)
	case KindElectionRequest:
		req := m.ElectionRequest
		writeInt64(&buf, req.Term)
		writeInt64(&buf, req.LastLogTerm)
		writeInt64(&buf, req.LastLogIndex)
	case KindElectionResponse:
		resp := m.ElectionResponse
		writeInt64(&buf, resp.Term)
		writeBool(&buf, resp.VoteGranted)
	default:
		return nil, fmt.Errorf("serializer: cannot marshal %s", m.Kind)
	}
	return buf.Bytes(), nil
}

func (s *binaryImpl) Unmarshal(data []byte) (*Message, error) {
	r := bytes.NewReader(data)
	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("serializer: empty message")
	}

	m := &Message{Kind: MessageKind(kindByte)}
	switch m.Kind {
	case KindHeartbeatRequest:
		req := &consensus.HeartbeatRequest{}
		if req.Term, err = readInt64(r); err != nil {
			return nil, err
		}
		if req.CommitLogIndex, err = readInt64(r); err != nil {
			return nil, err
		}
		if req.Leader, err = readNode(r); err != nil {
			return nil, err
		}
		if req.RequireIdentifier, err = readBool(r); err != nil {
			return nil, err
		}
		if req.RegenerateIdentifier, err = readBool(r); err != nil {
			return nil, err
		}
		hasNodeSet, err := readBool(r)
		if err != nil {
			return nil, err
		}
		if hasNodeSet {
			count, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			req.NodeSet = make([]consensus.Node, count)
			for i := range req.NodeSet {
				if req.NodeSet[i], err = readNode(r); err != nil {
					return nil, err
				}
			}
		}
		m.HeartbeatRequest = req
	case KindHeartbeatResponse:
		resp := &consensus.HeartbeatResponse{}
		if resp.Term, err = readInt64(r); err != nil {
			return nil, err
		}
		if resp.Follower, err = readNode(r); err != nil {
			return nil, err
		}
		if resp.RequireNodeList, err = readBool(r); err != nil {
			return nil, err
		}
		m.HeartbeatResponse = resp
	case KindElectionRequest:
		req := &consensus.ElectionRequest{}
		if req.Term, err = readInt64(r); err != nil {
			return nil, err
		}
		if req.LastLogTerm, err = readInt64(r); err != nil {
			return nil, err
		}
		if req.LastLogIndex, err = readInt64(r); err != nil {
			return nil, err
		}
		m.ElectionRequest = req
	case KindElectionResponse:
		resp := &consensus.ElectionResponse{}
		if resp.Term, err = readInt64(r); err != nil {
			return nil, err
		}
		if resp.VoteGranted, err = readBool(r); err != nil {
			return nil, err
		}
		m.ElectionResponse = resp
	default:
		return nil, fmt.Errorf("serializer: cannot unmarshal %s", m.Kind)
	}
	return m, nil
}

// --------------------------------------------------------------------------
// Field helpers
// --------------------------------------------------------------------------

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeNode(buf *bytes.Buffer, n consensus.Node) {
	writeString(buf, n.Host)
	var port [2]byte
	binary.LittleEndian.PutUint16(port[:], n.Port)
	buf.Write(port[:])
	writeBool(buf, n.IdentifierSet)
	writeUint32(buf, uint32(n.Identifier))
}

func readInt64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readNode(r *bytes.Reader) (consensus.Node, error) {
	var n consensus.Node
	var err error
	if n.Host, err = readString(r); err != nil {
		return n, err
	}
	var port [2]byte
	if _, err := io.ReadFull(r, port[:]); err != nil {
		return n, err
	}
	n.Port = binary.LittleEndian.Uint16(port[:])
	if n.IdentifierSet, err = readBool(r); err != nil {
		return n, err
	}
	id, err := readUint32(r)
	if err != nil {
		return n, err
	}
	n.Identifier = int32(id)
	return n, nil
}
