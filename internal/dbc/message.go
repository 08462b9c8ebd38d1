package dbc

import "fmt"

// EncodeResult is the output of an encode: an identifier and a payload
// ready to hand to the frame codec.
type EncodeResult struct {
	ID   uint32
	Data []byte
}

// DecodeResult is the output of a decode: the message's name and its
// signals' physical values, keyed by signal name.
type DecodeResult struct {
	Name    string
	Signals map[string]float64
}

// EncodeCAN looks up a message by name and packs values into its payload.
// Values absent from the input map are left as zero in the payload (the
// signal simply keeps its all-zero-bits default). Unknown keys in values
// are ignored.
func (c *Catalog) EncodeCAN(name string, values map[string]float64) (EncodeResult, error) {
	m, ok := c.MessageByName(name)
	if !ok {
		return EncodeResult{}, fmt.Errorf("%w: %q (available: %v)", ErrUnknownMessage, name, c.Names())
	}
	data := make([]byte, m.DLC)
	for _, s := range m.Signals {
		v, ok := values[s.Name]
		if !ok {
			continue
		}
		if err := s.Encode(data, m.DLC, v); err != nil {
			return EncodeResult{}, err
		}
	}
	return EncodeResult{ID: m.ID, Data: data}, nil
}

// DecodeCAN looks up a message by id and unpacks its payload into physical
// signal values. It returns ok=false (no error) if no message matches id,
// per the spec's "absent" return for unknown ids.
func (c *Catalog) DecodeCAN(id uint32, data []byte) (DecodeResult, bool, error) {
	m, ok := c.MessageByID(id)
	if !ok {
		return DecodeResult{}, false, nil
	}
	out := DecodeResult{Name: m.Name, Signals: make(map[string]float64, len(m.Signals))}
	for _, s := range m.Signals {
		v, err := s.Decode(data, m.DLC)
		if err != nil {
			return DecodeResult{}, true, err
		}
		out.Signals[s.Name] = v
	}
	return out, true, nil
}
