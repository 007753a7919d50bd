package serializer

import (
	"fmt"

	"github.com/holtenko/iotdb/lib/consensus"
)

// --------------------------------------------------------------------------
// Message envelope
// --------------------------------------------------------------------------

// MessageKind discriminates the payload carried by a Message.
type MessageKind uint8

const (
	KindHeartbeatRequest MessageKind = iota + 1
	KindHeartbeatResponse
	KindElectionRequest
	KindElectionResponse
)

func (k MessageKind) String() string {
	switch k {
	case KindHeartbeatRequest:
		return "HeartbeatRequest"
	case KindHeartbeatResponse:
		return "HeartbeatResponse"
	case KindElectionRequest:
		return "ElectionRequest"
	case KindElectionResponse:
		return "ElectionResponse"
	default:
		return fmt.Sprintf("MessageKind(%d)", uint8(k))
	}
}

// Message is the wire envelope of the consensus RPCs. Exactly the payload
// matching Kind is non-nil.
type Message struct {
	Kind MessageKind

	HeartbeatRequest  *consensus.HeartbeatRequest  `json:",omitempty"`
	HeartbeatResponse *consensus.HeartbeatResponse `json:",omitempty"`
	ElectionRequest   *consensus.ElectionRequest   `json:",omitempty"`
	ElectionResponse  *consensus.ElectionResponse  `json:",omitempty"`
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ISerializer converts Messages to and from their wire form. Implementations
// must be safe for concurrent use.
type ISerializer interface {
	// Marshal serializes a message.
	Marshal(m *Message) ([]byte, error)
	// Unmarshal deserializes a message.
	Unmarshal(data []byte) (*Message, error)
	// GetName returns the name of the serializer (e.g. "json", "binary").
	GetName() string
}

// New returns the serializer registered under name.
func New(name string) (ISerializer, error) {
	switch name {
	case "json":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	case "binary":
		return NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("serializer: unknown implementation %q", name)
	}
}
