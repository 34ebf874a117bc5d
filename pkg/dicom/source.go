package dicom

import (
	"encoding/binary"
	"fmt"
	"io"
)

// source wraps a seekable byte stream with absolute position tracking so the
// reader can record value offsets, reposition after a stop predicate, and
// skip deferred values without copying them.
type source struct {
	r   io.ReadSeeker
	pos int64
}

func newSource(r io.ReadSeeker) (*source, error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("querying stream position: %w", err)
	}
	return &source{r: r, pos: pos}, nil
}

func (s *source) offset() int64 { return s.pos }

func (s *source) readFull(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(s.r, b); err != nil {
		return nil, err
	}
	s.pos += int64(n)
	return b, nil
}

func (s *source) uint16(order binary.ByteOrder) (uint16, error) {
	b, err := s.readFull(2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(b), nil
}

func (s *source) uint32(order binary.ByteOrder) (uint32, error) {
	b, err := s.readFull(4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}

func (s *source) seekTo(off int64) error {
	if _, err := s.r.Seek(off, io.SeekStart); err != nil {
		return err
	}
	s.pos = off
	return nil
}

func (s *source) skip(n int64) error {
	return s.seekTo(s.pos + n)
}

// peek returns up to n upcoming bytes without consuming them. Fewer bytes
// are returned near end of input.
func (s *source) peek(n int) ([]byte, error) {
	b := make([]byte, n)
	read, err := io.ReadFull(s.r, b)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	if _, err := s.r.Seek(s.pos, io.SeekStart); err != nil {
		return nil, err
	}
	return b[:read], nil
}

// size reports the total stream length
func (s *source) size() (int64, error) {
	end, err := s.r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := s.r.Seek(s.pos, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}
