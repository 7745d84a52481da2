// Package bencode implements the binary-safe, length-prefixed encoding spoken
// by nREPL servers: byte strings, integers, lists, and string-keyed
// dictionaries framed over a raw byte stream.
//
// Byte strings decode to Go strings without any UTF-8 assumption; evaluation
// output may contain arbitrary byte ranges, and Go strings carry raw bytes
// losslessly. Callers interpret values as text only at the boundary where
// text is required.
package bencode

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Encode writes the bencoded form of v to w. Supported value types are
// string, []byte, int, int64, []any, []string, and map[string]any with
// values of the same types. Dictionary keys are emitted in sorted order so
// encoding is deterministic.
func Encode(w io.Writer, v any) error {
	switch val := v.(type) {
	case string:
		return encodeBytes(w, []byte(val))
	case []byte:
		return encodeBytes(w, val)
	case int:
		return encodeInt(w, int64(val))
	case int64:
		return encodeInt(w, val)
	case []string:
		generic := make([]any, len(val))
		for i, s := range val {
			generic[i] = s
		}
		return encodeList(w, generic)
	case []any:
		return encodeList(w, val)
	case map[string]any:
		return encodeDict(w, val)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrProtocol, v)
	}
}

func encodeBytes(w io.Writer, b []byte) error {
	if _, err := fmt.Fprintf(w, "%d:", len(b)); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func encodeInt(w io.Writer, n int64) error {
	_, err := fmt.Fprintf(w, "i%de", n)
	return err
}

func encodeList(w io.Writer, items []any) error {
	if _, err := io.WriteString(w, "l"); err != nil {
		return err
	}
	for _, item := range items {
		if err := Encode(w, item); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "e")
	return err
}

func encodeDict(w io.Writer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if _, err := io.WriteString(w, "d"); err != nil {
		return err
	}
	for _, k := range keys {
		if err := encodeBytes(w, []byte(k)); err != nil {
			return err
		}
		if err := Encode(w, m[k]); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "e")
	return err
}

// Decoder reads bencoded values from a byte stream. A Decoder that has
// returned a protocol error is unusable: the stream position is undefined and
// every subsequent Decode returns the same error.
type Decoder struct {
	r   *bufio.Reader
	err error
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode reads the next complete value from the stream. Integers decode to
// int64, byte strings to string, lists to []any, and dictionaries to
// map[string]any. Returns io.EOF when the stream ends cleanly between
// values; a truncated or malformed frame returns an error wrapping
// ErrProtocol.
func (d *Decoder) Decode() (any, error) {
	if d.err != nil {
		return nil, d.err
	}

	v, err := d.decodeValue(true)
	if err != nil && err != io.EOF {
		d.err = err
	}
	return v, err
}

func (d *Decoder) decodeValue(topLevel bool) (any, error) {
	prefix, err := d.r.ReadByte()
	if err == io.EOF && topLevel {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("%w: truncated stream: %w", ErrProtocol, err)
	}

	switch {
	case prefix == 'i':
		return d.decodeInt()
	case prefix >= '0' && prefix <= '9':
		return d.decodeString(prefix)
	case prefix == 'l':
		return d.decodeList()
	case prefix == 'd':
		return d.decodeDict()
	default:
		return nil, fmt.Errorf("%w: unexpected prefix byte %q", ErrProtocol, prefix)
	}
}

func (d *Decoder) decodeInt() (int64, error) {
	digits, err := d.readUntil('e')
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid integer %q", ErrProtocol, digits)
	}
	return n, nil
}

func (d *Decoder) decodeString(first byte) (string, error) {
	digits, err := d.readUntil(':')
	if err != nil {
		return "", err
	}
	length, err := strconv.Atoi(string(first) + string(digits))
	if err != nil || length < 0 {
		return "", fmt.Errorf("%w: invalid length prefix %q", ErrProtocol, string(first)+string(digits))
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", fmt.Errorf("%w: truncated byte string: %w", ErrProtocol, err)
	}
	return string(buf), nil
}

func (d *Decoder) decodeList() ([]any, error) {
	items := []any{}
	for {
		next, err := d.r.Peek(1)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated list: %w", ErrProtocol, err)
		}
		if next[0] == 'e' {
			_, _ = d.r.ReadByte()
			return items, nil
		}
		item, err := d.decodeValue(false)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}

func (d *Decoder) decodeDict() (map[string]any, error) {
	m := map[string]any{}
	for {
		next, err := d.r.Peek(1)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated dictionary: %w", ErrProtocol, err)
		}
		if next[0] == 'e' {
			_, _ = d.r.ReadByte()
			return m, nil
		}

		key, err := d.decodeValue(false)
		if err != nil {
			return nil, err
		}
		keyStr, ok := key.(string)
		if !ok {
			return nil, fmt.Errorf("%w: dictionary key is %T, want string", ErrProtocol, key)
		}
		val, err := d.decodeValue(false)
		if err != nil {
			return nil, err
		}
		m[keyStr] = val
	}
}

func (d *Decoder) readUntil(delim byte) ([]byte, error) {
	data, err := d.r.ReadBytes(delim)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated stream: %w", ErrProtocol, err)
	}
	return data[:len(data)-1], nil
}
