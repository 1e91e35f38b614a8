package features

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var codecMagic = [4]byte{'S', 'F', 'D', '1'}

var ErrBadEncoding = errors.New("invalid descriptor encoding")

type codecHeader struct {
	Magic [4]byte
	Rows  uint32
	Dims  uint32
}

// Encode serialises a set as little-endian float32 values: a header, then
// every keypoint (x, y, response, angle), then the descriptor rows.
func Encode(s *Set) ([]byte, error) {
	var buf bytes.Buffer
	hdr := codecHeader{Magic: codecMagic, Rows: uint32(s.Len()), Dims: DescriptorSize}
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return nil, err
	}
	if len(s.Keypoints) != s.Len() {
		return nil, fmt.Errorf("%w: %d keypoints for %d descriptors", ErrBadEncoding, len(s.Keypoints), s.Len())
	}
	if err := binary.Write(&buf, binary.LittleEndian, s.Keypoints); err != nil {
		return nil, err
	}
	for i, row := range s.Descriptors {
		if len(row) != DescriptorSize {
			return nil, fmt.Errorf("%w: row %d has %d values", ErrBadEncoding, i, len(row))
		}
		if err := binary.Write(&buf, binary.LittleEndian, row); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Decode parses bytes produced by Encode.
func Decode(data []byte) (*Set, error) {
	r := bytes.NewReader(data)
	var hdr codecHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEncoding, err)
	}
	if hdr.Magic != codecMagic || hdr.Dims != DescriptorSize {
		return nil, ErrBadEncoding
	}

	want := int(hdr.Rows) * (4*4 + DescriptorSize*4)
	if r.Len() != want {
		return nil, fmt.Errorf("%w: expected %d payload bytes, got %d", ErrBadEncoding, want, r.Len())
	}

	s := &Set{
		Keypoints:   make([]Keypoint, hdr.Rows),
		Descriptors: make([][]float32, hdr.Rows),
	}
	if err := binary.Read(r, binary.LittleEndian, s.Keypoints); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEncoding, err)
	}
	for i := range s.Descriptors {
		row := make([]float32, DescriptorSize)
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadEncoding, err)
		}
		s.Descriptors[i] = row
	}
	return s, nil
}
