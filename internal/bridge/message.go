package bridge

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"sync"

	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/zerr"
	"google.golang.org/protobuf/encoding/protowire"
)

// maxMessageSize bounds a single control message.
const maxMessageSize = 1 << 20

// Kind discriminates control-channel messages.
type Kind int32

const (
	// KindUnknown is the zero value and never sent.
	KindUnknown Kind = iota
	// KindStartCommand is sent once by the coordinator right after spawning.
	KindStartCommand
	// KindLoadRequest is sent by the worker before every bridged module load.
	KindLoadRequest
)

// String returns the message kind name.
func (k Kind) String() string {
	switch k {
	case KindStartCommand:
		return "StartCommand"
	case KindLoadRequest:
		return "LoadRequest"
	default:
		return "Unknown"
	}
}

// Message is one control-channel message. Path is set for LoadRequest,
// Start for StartCommand.
type Message struct {
	Kind  Kind
	Path  string
	Start domain.StartCommand
}

// LoadRequest builds the worker's "about to load path" notification.
func LoadRequest(path string) Message {
	return Message{Kind: KindLoadRequest, Path: path}
}

// StartCommand builds the coordinator's one-time start message.
func StartCommand(cmd domain.StartCommand) Message {
	return Message{Kind: KindStartCommand, Start: cmd}
}

// Field numbers of the wire encoding.
const (
	fieldKind            protowire.Number = 1
	fieldPath            protowire.Number = 2
	fieldEndpoint        protowire.Number = 3
	fieldArgv            protowire.Number = 4
	fieldTranslateErrors protowire.Number = 5
	fieldExtensions      protowire.Number = 6
	fieldExcludeDirs     protowire.Number = 7
	fieldExitOnTerminate protowire.Number = 8
)

// Marshal encodes m in protobuf wire format.
func Marshal(m Message) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Kind)) //nolint:gosec // kinds are small and non-negative

	if m.Path != "" {
		b = appendString(b, fieldPath, m.Path)
	}

	if m.Kind != KindStartCommand {
		return b
	}

	s := m.Start
	if s.Endpoint != "" {
		b = appendString(b, fieldEndpoint, s.Endpoint)
	}
	for _, arg := range s.Argv {
		b = appendString(b, fieldArgv, arg)
	}
	b = appendBool(b, fieldTranslateErrors, s.TranslateErrors)
	for _, ext := range s.Extensions {
		b = appendString(b, fieldExtensions, ext)
	}
	for _, dir := range s.ExcludeDirs {
		b = appendString(b, fieldExcludeDirs, dir)
	}
	b = appendBool(b, fieldExitOnTerminate, s.ExitOnTerminate)
	return b
}

// Unmarshal decodes a message produced by Marshal. Unknown fields are skipped.
func Unmarshal(b []byte) (Message, error) {
	var m Message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, invalid(protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, invalid(protowire.ParseError(n))
			}
			m.Kind = Kind(v) //nolint:gosec // unknown kinds are rejected below
			b = b[n:]
		case num == fieldTranslateErrors && typ == protowire.VarintType,
			num == fieldExitOnTerminate && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Message{}, invalid(protowire.ParseError(n))
			}
			if num == fieldTranslateErrors {
				m.Start.TranslateErrors = protowire.DecodeBool(v)
			} else {
				m.Start.ExitOnTerminate = protowire.DecodeBool(v)
			}
			b = b[n:]
		case typ == protowire.BytesType && num >= fieldPath && num <= fieldExcludeDirs:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return Message{}, invalid(protowire.ParseError(n))
			}
			m.setString(num, v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Message{}, invalid(protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if m.Kind != KindStartCommand && m.Kind != KindLoadRequest {
		return Message{}, zerr.With(domain.ErrControlMessageInvalid, "kind", int32(m.Kind))
	}
	return m, nil
}

func (m *Message) setString(num protowire.Number, v string) {
	switch num {
	case fieldPath:
		m.Path = v
	case fieldEndpoint:
		m.Start.Endpoint = v
	case fieldArgv:
		m.Start.Argv = append(m.Start.Argv, v)
	case fieldExtensions:
		m.Start.Extensions = append(m.Start.Extensions, v)
	case fieldExcludeDirs:
		m.Start.ExcludeDirs = append(m.Start.ExcludeDirs, v)
	}
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func invalid(err error) error {
	return errors.Join(domain.ErrControlMessageInvalid, err)
}

// Encoder writes length-delimited messages. It is safe for concurrent use.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one message prefixed with its varint length.
func (e *Encoder) Encode(m Message) error {
	body := Marshal(m)
	buf := protowire.AppendVarint(make([]byte, 0, binary.MaxVarintLen64+len(body)), uint64(len(body)))
	buf = append(buf, body...)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.w.Write(buf); err != nil {
		if isGone(err) {
			return errors.Join(domain.ErrWorkerGone, err)
		}
		return zerr.Wrap(err, "failed to write control message")
	}
	return nil
}

// Decoder reads length-delimited messages.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads the next message. It returns io.EOF when the channel closes
// cleanly between messages.
func (d *Decoder) Decode() (Message, error) {
	size, err := binary.ReadUvarint(d.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Message{}, io.EOF
		}
		return Message{}, invalid(err)
	}
	if size > maxMessageSize {
		return Message{}, zerr.With(domain.ErrControlMessageInvalid, "size", size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(d.r, body); err != nil {
		return Message{}, invalid(err)
	}
	return Unmarshal(body)
}
