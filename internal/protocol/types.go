package protocol

const (
	Magic      uint32 = 0xFABC0101
	Version    uint16 = 1
	HeaderSize uint16 = 32
)

// Frame flags.
const (
	FlagHasAuth  uint32 = 0x01
	FlagResponse uint32 = 0x02
	FlagError    uint32 = 0x04
)

// MessageType identifies one wire message shape.
type MessageType uint32

const (
	MsgHello    MessageType = 1
	MsgHelloAck MessageType = 2
	MsgCall     MessageType = 3
	MsgOutput   MessageType = 4
	MsgResult   MessageType = 5
)

// FieldType identifies the value encoding of one TLV field.
type FieldType uint8

const (
	FieldUint8  FieldType = 1
	FieldUint16 FieldType = 2
	FieldUint32 FieldType = 3
	FieldUint64 FieldType = 4
	FieldBool   FieldType = 5
	FieldString FieldType = 6
	FieldBytes  FieldType = 7
)

// Field IDs shared across message types.
const (
	FieldCallID     uint16 = 1
	FieldCaller     uint16 = 2
	FieldTarget     uint16 = 3
	FieldHidden     uint16 = 4
	FieldModule     uint16 = 5
	FieldFunction   uint16 = 6
	FieldArgs       uint16 = 7
	FieldEvalForm   uint16 = 8
	FieldTimeoutMS  uint16 = 9
	FieldOutputKind uint16 = 10
	FieldText       uint16 = 11
	FieldFormatArgs uint16 = 12
	FieldValue      uint16 = 13
	FieldStatus     uint16 = 14
	FieldReason     uint16 = 15
)

// Header is the fixed frame header.
type Header struct {
	Magic       uint32
	Version     uint16
	HeaderLen   uint16
	MessageID   uint64
	MessageType MessageType
	Flags       uint32
	PayloadLen  uint64
}

// Field is one TLV payload field.
type Field struct {
	ID    uint16
	Type  FieldType
	Value []byte
}

// Message is one complete wire message.
type Message struct {
	Header    Header
	AuthBlock []byte
	Fields    []Field
}

// GetField returns the first field with the given id.
func GetField(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}
