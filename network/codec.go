package network

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/relaynet/approvaldist/model/approval"
)

// Message codes prefixing every encoded envelope on the
// approval-distribution channel.
const (
	codeMin uint8 = iota
	CodeAssignmentsV1
	CodeApprovalsV1
	codeMax
)

// Codec translates channel events to and from their wire form: a
// one-byte message code followed by the CBOR encoding of the event.
type Codec struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

func NewCodec() (*Codec, error) {
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("could not create cbor encoder: %w", err)
	}
	decMode, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("could not create cbor decoder: %w", err)
	}
	return &Codec{encMode: encMode, decMode: decMode}, nil
}

// Encode serializes the event into its envelope.
func (c *Codec) Encode(event interface{}) ([]byte, error) {
	var code uint8
	switch event.(type) {
	case *approval.AssignmentsV1:
		code = CodeAssignmentsV1
	case *approval.ApprovalsV1:
		code = CodeApprovalsV1
	default:
		return nil, fmt.Errorf("unencodable event type %T", event)
	}

	data, err := c.encMode.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("could not encode %T: %w", event, err)
	}
	return append([]byte{code}, data...), nil
}

// Decode deserializes an envelope back into its event. Errors from
// this function mean a malformed envelope from the peer, never an
// internal failure.
func (c *Codec) Decode(data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty envelope")
	}
	code := data[0]
	if code <= codeMin || code >= codeMax {
		return nil, fmt.Errorf("unknown message code %d", code)
	}

	var event interface{}
	switch code {
	case CodeAssignmentsV1:
		event = &approval.AssignmentsV1{}
	case CodeApprovalsV1:
		event = &approval.ApprovalsV1{}
	}
	if err := c.decMode.Unmarshal(data[1:], event); err != nil {
		return nil, fmt.Errorf("could not decode message code %d: %w", code, err)
	}
	return event, nil
}
