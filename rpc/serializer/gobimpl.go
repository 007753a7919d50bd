package serializer

import (
	"bytes"
	"encoding/gob"
)

// --------------------------------------------------------------------------
// GOB serializer
// --------------------------------------------------------------------------

// gobImpl uses the stdlib gob encoding; only useful when both ends are Go.
type gobImpl struct{}

// NewGOBSerializer creates the gob serializer.
func NewGOBSerializer() ISerializer {
	return &gobImpl{}
}

func (s *gobImpl) GetName() string {
	return "gob"
}

func (s *gobImpl) Marshal(m *Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *gobImpl) Unmarshal(data []byte) (*Message, error) {
	m := &Message{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(m); err != nil {
		return nil, err
	}
	return m, nil
}
