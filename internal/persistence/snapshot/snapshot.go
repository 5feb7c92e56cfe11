// Package snapshot writes point-in-time exports of the facility state:
// a JSON header line followed by the CBOR-encoded snapshot, all inside
// one zstd stream. Exports are for inspection only and are never loaded
// back into a running operator.
package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"supersorting.ai/internal/facility"
	"supersorting.ai/internal/protocol"
)

const Version = 1

type Header struct {
	Version int       `json:"version"`
	At      time.Time `json:"at"`
	Digest  string    `json:"digest"`
	Agents  int       `json:"agents"`
	Items   int       `json:"items"`
	Holds   int       `json:"holds"`
}

func HeaderFor(snap facility.Snapshot) Header {
	return Header{
		Version: Version,
		At:      snap.At,
		Digest:  snap.Digest,
		Agents:  len(snap.Agents),
		Items:   len(snap.Items),
		Holds:   len(snap.Holds),
	}
}

// FileName names an export by its UTC time, so names sort by age.
func FileName(at time.Time) string {
	return at.UTC().Format("20060102T150405.000Z") + ".snap.zst"
}

func Write(path string, snap facility.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	body, err := protocol.MarshalCBOR(snap)
	if err != nil {
		return fmt.Errorf("cbor encode: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := writeTo(f, HeaderFor(snap), body); err != nil {
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

func writeTo(w io.Writer, h Header, body []byte) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)
	hb, _ := json.Marshal(h)
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		enc.Close()
		return err
	}
	if _, err := bw.Write(body); err != nil {
		enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Read returns the header and snapshot stored at path.
func Read(path string) (Header, facility.Snapshot, error) {
	var h Header
	var snap facility.Snapshot
	f, err := os.Open(path)
	if err != nil {
		return h, snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, snap, fmt.Errorf("header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, snap, fmt.Errorf("header: %w", err)
	}
	if h.Version != Version {
		return h, snap, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return h, snap, err
	}
	if err := protocol.UnmarshalCBOR(body, &snap); err != nil {
		return h, snap, fmt.Errorf("cbor decode: %w", err)
	}
	return h, snap, nil
}
