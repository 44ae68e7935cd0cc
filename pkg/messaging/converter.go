package messaging

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
)

// MessageConverter maps application payloads to and from the Pub/Sub message
// envelope. Implementations must be safe for concurrent use; the same
// converter instance is shared between the publish and subscribe paths.
type MessageConverter interface {
	// ToMessage serializes payload into a new message carrying the given
	// headers as attributes. The returned message must not be mutated.
	ToMessage(payload any, headers map[string]string) (*pubsubpb.PubsubMessage, error)
	// FromMessage deserializes the message body into target, which must be
	// a non-nil pointer.
	FromMessage(msg *pubsubpb.PubsubMessage, target any) error
}

// JSONMessageConverter encodes payloads as JSON. It is the default converter
// for new templates.
type JSONMessageConverter struct{}

func (JSONMessageConverter) ToMessage(payload any, headers map[string]string) (*pubsubpb.PubsubMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &ConversionError{Err: err}
	}
	return &pubsubpb.PubsubMessage{Data: data, Attributes: headers}, nil
}

func (JSONMessageConverter) FromMessage(msg *pubsubpb.PubsubMessage, target any) error {
	if err := json.Unmarshal(msg.GetData(), target); err != nil {
		return &ConversionError{Err: err}
	}
	return nil
}

// SimpleMessageConverter passes []byte and string payloads through without
// re-encoding. Any other payload type is rejected.
type SimpleMessageConverter struct{}

func (SimpleMessageConverter) ToMessage(payload any, headers map[string]string) (*pubsubpb.PubsubMessage, error) {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	default:
		return nil, &ConversionError{Err: fmt.Errorf("unsupported payload type %T", payload)}
	}
	return &pubsubpb.PubsubMessage{Data: data, Attributes: headers}, nil
}

func (SimpleMessageConverter) FromMessage(msg *pubsubpb.PubsubMessage, target any) error {
	switch t := target.(type) {
	case *[]byte:
		*t = msg.GetData()
	case *string:
		*t = string(msg.GetData())
	default:
		return &ConversionError{Err: fmt.Errorf("unsupported target type %T", target)}
	}
	return nil
}

// converterShare holds the converter shared between a publisher and a
// subscriber template. Replacement is last-write-wins and safe to race with
// in-flight conversions.
type converterShare struct {
	v atomic.Pointer[converterBox]
}

type converterBox struct {
	c MessageConverter
}

func newConverterShare(c MessageConverter) *converterShare {
	s := &converterShare{}
	s.v.Store(&converterBox{c: c})
	return s
}

func (s *converterShare) Get() MessageConverter { return s.v.Load().c }

func (s *converterShare) Set(c MessageConverter) { s.v.Store(&converterBox{c: c}) }
