package attr

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Attribute names used by the rewrite and resolve protocols.
const (
	NameRequest   = "request"
	NameRule      = "rule"
	NameAddress   = "address"
	NameSender    = "sender"
	NameFlags     = "flags"
	NameTransport = "transport"
	NameNexthop   = "nexthop"
	NameRecipient = "recipient"
)

// MaxValueLen bounds a single name or value.
const MaxValueLen = 64 * 1024

// ErrProtocol reports a malformed or unexpected message.
var ErrProtocol = errors.New("attribute protocol error")

// Kind is the type of an attribute value.
type Kind uint8

const (
	KindString Kind = iota + 1
	KindInt
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Attr is one outgoing name/value pair.
type Attr struct {
	Name string
	Kind Kind
	Str  string
	Int  int
}

// String returns a string attribute.
func String(name, value string) Attr {
	return Attr{Name: name, Kind: KindString, Str: value}
}

// Int returns an integer attribute.
func Int(name string, value int) Attr {
	return Attr{Name: name, Kind: KindInt, Int: value}
}

func (a Attr) value() string {
	if a.Kind == KindInt {
		return strconv.Itoa(a.Int)
	}
	return a.Str
}

// Field is one expected incoming attribute bound to a destination.
type Field struct {
	Name string
	Kind Kind
	str  *string
	num  *int
}

// StringField expects a string attribute named name.
func StringField(name string, dst *string) Field {
	return Field{Name: name, Kind: KindString, str: dst}
}

// IntField expects an integer attribute named name.
func IntField(name string, dst *int) Field {
	return Field{Name: name, Kind: KindInt, num: dst}
}

// Pair is a raw name/value pair read by ReadAll.
type Pair struct {
	Name  string
	Value string
}

// Writer encodes messages. Output is buffered until Flush.
type Writer struct {
	w *bufio.Writer
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Check reports whether attrs can be encoded. Errors wrap ErrProtocol.
func Check(attrs ...Attr) error {
	for _, a := range attrs {
		if a.Name == "" {
			return fmt.Errorf("%w: empty attribute name", ErrProtocol)
		}
		if a.Kind != KindString && a.Kind != KindInt {
			return fmt.Errorf("%w: attribute %s has unknown kind %s", ErrProtocol, a.Name, a.Kind)
		}
		value := a.value()
		if len(a.Name) > MaxValueLen || len(value) > MaxValueLen {
			return fmt.Errorf("%w: attribute %s too long", ErrProtocol, a.Name)
		}
		if strings.IndexByte(a.Name, 0) >= 0 || strings.IndexByte(value, 0) >= 0 {
			return fmt.Errorf("%w: NUL byte in attribute %s", ErrProtocol, a.Name)
		}
	}
	return nil
}

// Write encodes attrs followed by the end marker. Nothing is buffered when
// attrs fail Check.
func (w *Writer) Write(attrs ...Attr) error {
	if err := Check(attrs...); err != nil {
		return err
	}
	for _, a := range attrs {
		if err := w.writeToken(a.Name); err != nil {
			return err
		}
		if err := w.writeToken(a.value()); err != nil {
			return err
		}
	}
	return w.w.WriteByte(0)
}

func (w *Writer) writeToken(s string) error {
	if _, err := w.w.WriteString(s); err != nil {
		return err
	}
	return w.w.WriteByte(0)
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Reader decodes messages.
type Reader struct {
	r *bufio.Reader
}

// NewReader returns a Reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Read decodes one message that must contain exactly fields, in order.
func (r *Reader) Read(fields ...Field) error {
	for _, f := range fields {
		name, err := r.readToken()
		if err != nil {
			return err
		}
		if name == "" {
			return fmt.Errorf("%w: message ended before %s", ErrProtocol, f.Name)
		}
		if name != f.Name {
			return fmt.Errorf("%w: got attribute %s, want %s", ErrProtocol, name, f.Name)
		}
		value, err := r.readToken()
		if err != nil {
			return err
		}
		switch f.Kind {
		case KindString:
			*f.str = value
		case KindInt:
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("%w: attribute %s: bad number %q", ErrProtocol, name, value)
			}
			*f.num = n
		default:
			return fmt.Errorf("%w: attribute %s has unknown kind %s", ErrProtocol, name, f.Kind)
		}
	}
	end, err := r.readToken()
	if err != nil {
		return err
	}
	if end != "" {
		return fmt.Errorf("%w: unexpected attribute %s", ErrProtocol, end)
	}
	return nil
}

// ReadAll decodes one message without a schema.
func (r *Reader) ReadAll() ([]Pair, error) {
	var pairs []Pair
	for {
		name, err := r.readToken()
		if err != nil {
			return nil, err
		}
		if name == "" {
			return pairs, nil
		}
		value, err := r.readToken()
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, Pair{Name: name, Value: value})
	}
}

// readToken reads up to the next NUL. A clean EOF before any byte is
// returned as io.EOF; EOF inside a token is io.ErrUnexpectedEOF.
func (r *Reader) readToken() (string, error) {
	var buf []byte
	for {
		b, err := r.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		if b == 0 {
			return string(buf), nil
		}
		if len(buf) >= MaxValueLen {
			return "", fmt.Errorf("%w: token exceeds %d bytes", ErrProtocol, MaxValueLen)
		}
		buf = append(buf, b)
	}
}

// Lookup returns the value of the first pair named name.
func Lookup(pairs []Pair, name string) (string, bool) {
	for _, p := range pairs {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}
