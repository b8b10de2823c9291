package memory

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// writeSnapshot writes s as zstd-compressed JSON, replacing path atomically.
func writeSnapshot(path string, s *state) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	if err := encodeSnapshot(f, s); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encodeSnapshot(f *os.File, s *state) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)
	if err := json.NewEncoder(bw).Encode(s); err != nil {
		enc.Close()
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// readSnapshot returns nil, nil when path does not exist.
func readSnapshot(path string) (*state, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	s := newState()
	if err := json.NewDecoder(bufio.NewReader(dec)).Decode(s); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	s.fill()
	return s, nil
}

// fill replaces maps decoded as null.
func (s *state) fill() {
	fresh := newState()
	if s.Rooms == nil {
		s.Rooms = fresh.Rooms
	}
	if s.Players == nil {
		s.Players = fresh.Players
	}
	if s.Roster == nil {
		s.Roster = fresh.Roster
	}
	if s.Chat == nil {
		s.Chat = fresh.Chat
	}
	if s.Entries == nil {
		s.Entries = fresh.Entries
	}
	if s.Purchases == nil {
		s.Purchases = fresh.Purchases
	}
	if s.Results == nil {
		s.Results = fresh.Results
	}
}
