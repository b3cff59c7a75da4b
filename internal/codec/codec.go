// Package codec turns status payloads into self-contained URL fragments and back.
//
// A fragment is the literal prefix "#s=" followed by the payload JSON, DEFLATE
// compressed and written with the unpadded URL-safe base64 alphabet, so it can be
// appended to any page URL without further escaping.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/klauspost/compress/flate"

	"statuslink/internal/domain"
)

// Prefix starts every fragment produced by Encode.
const Prefix = "#s="

const (
	compressionLevel = flate.BestCompression
	maxInflatedBytes = 4 << 20
)

// ErrEncode is returned when a payload cannot be serialized.
var ErrEncode = errors.New("failed to encode status payload")

var b64 = base64.RawURLEncoding

// Decoded is the result of a successful Decode. Batch is true when the
// fragment carried a JSON array of payloads.
type Decoded struct {
	Payloads []domain.StatusPayload
	Batch    bool
}

// Encode serializes p (stamped with the current schema version) into a fragment.
func Encode(p domain.StatusPayload) (string, error) {
	data, err := json.Marshal(stamp(p))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return pack(data)
}

// stamp sets the current version and writes nil apps as an empty array,
// which Decode requires.
func stamp(p domain.StatusPayload) domain.StatusPayload {
	p.Version = domain.CurrentVersion
	if p.Apps == nil {
		p.Apps = []domain.AppEntry{}
	}
	return p
}

// EncodeBatch serializes several payloads into one fragment holding a JSON array.
func EncodeBatch(ps []domain.StatusPayload) (string, error) {
	out := make([]domain.StatusPayload, len(ps))
	for i, p := range ps {
		out[i] = stamp(p)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return pack(data)
}

func pack(data []byte) (string, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, compressionLevel)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncode, err)
	}
	if _, err := w.Write(data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncode, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return Prefix + b64.EncodeToString(buf.Bytes()), nil
}

// Decode parses a fragment. ok is false for anything that is not a valid
// fragment: missing prefix, corrupt compression, bad JSON or a payload without
// name, date and apps. Decode never panics on foreign input.
func Decode(fragment string) (Decoded, bool) {
	data, ok := unpack(fragment)
	if !ok {
		return Decoded{}, false
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Decoded{}, false
	}

	if trimmed[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			log.Printf("codec decode batch error: %v", err)
			return Decoded{}, false
		}
		var payloads []domain.StatusPayload
		for _, raw := range raws {
			if p, ok := decodeObject(raw); ok {
				payloads = append(payloads, p)
			}
		}
		if len(payloads) == 0 {
			return Decoded{}, false
		}
		return Decoded{Payloads: payloads, Batch: true}, true
	}

	p, ok := decodeObject(trimmed)
	if !ok {
		return Decoded{}, false
	}
	return Decoded{Payloads: []domain.StatusPayload{p}}, true
}

// DecodeStatus decodes a fragment expected to hold a single payload. A batch
// fragment yields its first payload.
func DecodeStatus(fragment string) (domain.StatusPayload, bool) {
	d, ok := Decode(fragment)
	if !ok {
		return domain.StatusPayload{}, false
	}
	return d.Payloads[0], true
}

// Flatten decodes every fragment and returns the payloads in order, skipping
// invalid fragments and expanding batches.
func Flatten(fragments []string) []domain.StatusPayload {
	var out []domain.StatusPayload
	for _, f := range fragments {
		d, ok := Decode(f)
		if !ok {
			continue
		}
		out = append(out, d.Payloads...)
	}
	return out
}

func unpack(fragment string) ([]byte, bool) {
	if !strings.HasPrefix(fragment, Prefix) {
		return nil, false
	}
	compressed, err := b64.DecodeString(fragment[len(Prefix):])
	if err != nil || len(compressed) == 0 {
		return nil, false
	}
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	data, err := io.ReadAll(io.LimitReader(r, maxInflatedBytes+1))
	if err != nil {
		return nil, false
	}
	if len(data) > maxInflatedBytes {
		log.Printf("codec decode rejected inflated_size>%d", maxInflatedBytes)
		return nil, false
	}
	return data, true
}

// wirePayload keeps apps raw so a missing or null apps field can be told apart
// from an empty array.
type wirePayload struct {
	Version    int               `json:"v"`
	Name       string            `json:"name"`
	Date       string            `json:"date"`
	Apps       json.RawMessage   `json:"apps"`
	CustomTags []json.RawMessage `json:"customTags"`
}

func decodeObject(raw []byte) (domain.StatusPayload, bool) {
	var w wirePayload
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.StatusPayload{}, false
	}
	if w.Name == "" || w.Date == "" {
		return domain.StatusPayload{}, false
	}
	apps := bytes.TrimSpace(w.Apps)
	if len(apps) == 0 || apps[0] != '[' {
		return domain.StatusPayload{}, false
	}
	var entries []domain.AppEntry
	if err := json.Unmarshal(apps, &entries); err != nil {
		return domain.StatusPayload{}, false
	}
	if entries == nil {
		entries = []domain.AppEntry{}
	}

	p := domain.StatusPayload{
		Version:    w.Version,
		Name:       w.Name,
		Date:       w.Date,
		Apps:       entries,
		CustomTags: w.CustomTags,
	}

	switch p.Version {
	case 1:
		return upgradeV1(p), true
	case domain.CurrentVersion:
		return p, true
	default:
		return domain.StatusPayload{}, false
	}
}

// upgradeV1 adds the fields introduced in version 2.
func upgradeV1(p domain.StatusPayload) domain.StatusPayload {
	p.Version = domain.CurrentVersion
	p.CustomTags = []json.RawMessage{}
	return p
}
