package uwsgi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"gitlab.com/gitlab-org/request-echo/internal/wsgi"
)

// headerSize is the size of the fixed packet header:
// modifier1 (uint8), datasize (uint16 little endian), modifier2 (uint8)
const headerSize = 4

// ModifierWSGI marks a packet carrying request variables for a WSGI application
const ModifierWSGI = 0

var (
	// ErrPacketTooLarge is returned when an environment does not fit in a single packet
	ErrPacketTooLarge = errors.New("uwsgi packet exceeds 65535 bytes")
	// ErrUnsupportedModifier is returned for packets other than WSGI request variables
	ErrUnsupportedModifier = errors.New("unsupported uwsgi modifier")
	// ErrMalformedPacket is returned when the variables block cannot be decoded
	ErrMalformedPacket = errors.New("malformed uwsgi packet")
)

// WriteEnviron encodes env as a single uwsgi request packet. Variables are
// written in key order.
func WriteEnviron(w io.Writer, env wsgi.Environ) error {
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var vars bytes.Buffer
	for _, key := range keys {
		if err := writeString(&vars, key); err != nil {
			return err
		}
		if err := writeString(&vars, env[key]); err != nil {
			return err
		}
	}

	if vars.Len() > math.MaxUint16 {
		return ErrPacketTooLarge
	}

	var header [headerSize]byte
	header[0] = ModifierWSGI
	binary.LittleEndian.PutUint16(header[1:3], uint16(vars.Len()))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	_, err := vars.WriteTo(w)
	return err
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("%w: variable of %d bytes", ErrPacketTooLarge, len(s))
	}

	var size [2]byte
	binary.LittleEndian.PutUint16(size[:], uint16(len(s)))
	buf.Write(size[:])
	buf.WriteString(s)

	return nil
}

// ReadEnviron reads a single uwsgi request packet from r
func ReadEnviron(r io.Reader) (wsgi.Environ, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	if header[0] != ModifierWSGI {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedModifier, header[0])
	}

	vars := make([]byte, binary.LittleEndian.Uint16(header[1:3]))
	if _, err := io.ReadFull(r, vars); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	env := wsgi.Environ{}
	for len(vars) > 0 {
		var key, value string
		var err error

		if key, vars, err = readString(vars); err != nil {
			return nil, err
		}
		if value, vars, err = readString(vars); err != nil {
			return nil, err
		}

		env[key] = value
	}

	return env, nil
}

func readString(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, fmt.Errorf("%w: truncated variable size", ErrMalformedPacket)
	}

	size := int(binary.LittleEndian.Uint16(b))
	b = b[2:]

	if len(b) < size {
		return "", nil, fmt.Errorf("%w: truncated variable", ErrMalformedPacket)
	}

	return string(b[:size]), b[size:], nil
}
