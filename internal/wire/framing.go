package wire

import (
	"errors"
	"fmt"
	"io"
)

// Frames are a variable-length size prefix followed by that many bytes of
// JSON. The prefix uses the 7-bits-per-byte continuation encoding, capped
// at 4 bytes.

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func DecodeFrameLength(r io.Reader) (int, error) {
	multiplier := 1
	value := 0
	for i := 0; i < 4; i++ {
		encodedByte, err := readByte(r)
		if err != nil {
			return 0, err
		}
		value += int(encodedByte&127) * multiplier
		multiplier *= 128
		if (encodedByte & 128) == 0 {
			return value, nil
		}
	}
	return 0, errors.New("the frame length exceeds the 4 byte limit")
}

func EncodeFrameLength(x int) []byte {
	if x == 0 {
		return []byte{0}
	}
	var buf [4]byte
	i := 0
	for x > 0 && i < 4 {
		buf[i] = byte(x % 128)
		if x /= 128; x > 0 {
			buf[i] |= 128
		}
		i++
	}
	return buf[:i]
}

// ReadFrame reads one length-prefixed message off the stream.
func ReadFrame(r io.Reader) ([]byte, error) {
	length, err := DecodeFrameLength(r)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, errors.New("empty frame")
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("unable to read frame payload, details: %v", err)
	}
	return payload, nil
}

// EncodeFrame prepends the length prefix to a message.
func EncodeFrame(payload []byte) []byte {
	prefix := EncodeFrameLength(len(payload))
	frame := make([]byte, 0, len(prefix)+len(payload))
	frame = append(frame, prefix...)
	return append(frame, payload...)
}
