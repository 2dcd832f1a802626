package connectcore

import (
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Serializer is the schema message codec connectcore drives: encode/decode
// plus the content types it's carried under. Callers are expected to supply
// one, or use the concrete proto and JSON implementations wired here against
// google.golang.org/protobuf so the call paths in this repository can
// actually be exercised and tested end to end.
//
// Marshal and Unmarshal take `any` rather than a generic type parameter,
// mirroring connect-go's own codec interface: the generic Request[T]/
// Response[T] wrappers carry a concrete *T, and the serializer asserts it
// implements proto.Message at the point of use instead of threading a
// second type parameter through every call-path function.
type Serializer struct {
	Name              string
	ContentTypeUnary  string
	ContentTypeStream string
	Marshal           func(any) ([]byte, error)
	Unmarshal         func([]byte, any) error
}

const (
	serializationNameProto = "proto"
	serializationNameJSON  = "json"
)

func asProtoMessage(v any) (proto.Message, *Error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, errorf(CodeInternal, "%T does not implement proto.Message", v)
	}
	return msg, nil
}

// ProtoSerializer marshals with binary protobuf wire format.
var ProtoSerializer = Serializer{
	Name:              serializationNameProto,
	ContentTypeUnary:  "application/proto",
	ContentTypeStream: "application/connect+proto",
	Marshal: func(v any) ([]byte, error) {
		msg, err := asProtoMessage(v)
		if err != nil {
			return nil, err
		}
		return proto.Marshal(msg)
	},
	Unmarshal: func(b []byte, v any) error {
		msg, err := asProtoMessage(v)
		if err != nil {
			return err
		}
		return proto.Unmarshal(b, msg)
	},
}

// JSONSerializer marshals with protobuf's canonical JSON mapping.
var JSONSerializer = Serializer{
	Name:              serializationNameJSON,
	ContentTypeUnary:  "application/json",
	ContentTypeStream: "application/connect+json",
	Marshal: func(v any) ([]byte, error) {
		msg, err := asProtoMessage(v)
		if err != nil {
			return nil, err
		}
		return protojson.Marshal(msg)
	},
	Unmarshal: func(b []byte, v any) error {
		msg, err := asProtoMessage(v)
		if err != nil {
			return err
		}
		return protojson.Unmarshal(b, msg)
	},
}
