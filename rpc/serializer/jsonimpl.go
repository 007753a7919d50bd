package serializer

import "encoding/json"

// --------------------------------------------------------------------------
// JSON serializer
// --------------------------------------------------------------------------

// jsonImpl trades size for readability; useful when inspecting traffic.
type jsonImpl struct{}

// NewJSONSerializer creates the JSON serializer.
func NewJSONSerializer() ISerializer {
	return &jsonImpl{}
}

func (s *jsonImpl) GetName() string {
	return "json"
}

func (s *jsonImpl) Marshal(m *Message) ([]byte, error) {
	return json.Marshal(m)
}

func (s *jsonImpl) Unmarshal(data []byte) (*Message, error) {
	m := &Message{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}
