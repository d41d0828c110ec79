// Package ledger implements the tamper-evident audit ledger: per-organization
// hash chains over a global sequence, the explicit and automatic write paths,
// the immutability guard, root checkpoints, and chain verification.
//
// The package is storage-agnostic. Backends (Postgres in internal/store, an
// in-memory one in internal/memstore) implement the Tx, Store and Runner
// interfaces declared here.
package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/persistorai/ledger/internal/models"
)

// HashSalt is mixed into every entry and root digest. It is versioned: a new
// salt requires a new prefix and a re-anchoring plan, never an in-place edit.
const HashSalt = "persistor-ledger/v1:5d0e8c1f4b7a"

// createdAtLayout renders timestamps at the microsecond precision the store keeps.
const createdAtLayout = "2006-01-02T15:04:05.000000Z"

// HashInput is the set of entry fields covered by the chain digest.
type HashInput struct {
	Seq            int64
	OrganizationID string
	ActorID        string
	EventName      string
	TargetType     string
	TargetID       string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// HashInputOf extracts the hashed fields from an entry.
func HashInputOf(e *models.Entry) HashInput {
	return HashInput{
		Seq:            e.Seq,
		OrganizationID: e.OrganizationID,
		ActorID:        e.ActorID,
		EventName:      e.EventName,
		TargetType:     e.TargetType,
		TargetID:       e.TargetID,
		Metadata:       e.Metadata,
		CreatedAt:      e.CreatedAt,
	}
}

// ComputeHash returns the hex SHA-256 digest of an entry given its
// predecessor's hash (nil for an organization's first entry). It depends only
// on its arguments.
func ComputeHash(prevHash *string, in HashInput) (string, error) {
	canonical, err := canonicalize(in)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrHashComputation, err)
	}

	h := sha256.New()
	if prevHash != nil {
		h.Write([]byte(*prevHash))
	}
	h.Write([]byte{'\n'})
	h.Write(canonical)
	h.Write([]byte{'\n'})
	h.Write([]byte(HashSalt))

	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalize encodes the hashed fields as a JSON array in fixed order.
func canonicalize(in HashInput) ([]byte, error) {
	meta, err := NormalizeMetadata(in.Metadata)
	if err != nil {
		return nil, err
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}

	return json.Marshal([]any{
		in.Seq,
		in.OrganizationID,
		in.ActorID,
		in.EventName,
		in.TargetType,
		in.TargetID,
		json.RawMessage(metaJSON),
		FormatTime(in.CreatedAt),
	})
}

// NormalizeTime truncates t to the precision the store keeps.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// FormatTime renders t in the canonical hashed form.
func FormatTime(t time.Time) string {
	return NormalizeTime(t).Format(createdAtLayout)
}

// NormalizeMetadata converts metadata into the form it takes after a storage
// round trip: plain maps with string keys, slices, strings, booleans, nil and
// json.Number values in a canonical decimal spelling. Nil becomes an empty map.
// The result is what the writer persists, so stored and hashed bytes agree.
func NormalizeMetadata(m map[string]any) (map[string]any, error) {
	if len(m) == 0 {
		return map[string]any{}, nil
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}

	normalized, err := normalizeValue(out)
	if err != nil {
		return nil, err
	}

	return normalized.(map[string]any), nil //nolint:forcetypeassert // map in, map out.
}

func normalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, inner := range t {
			n, err := normalizeValue(inner)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}

		return t, nil
	case []any:
		for i, inner := range t {
			n, err := normalizeValue(inner)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}

		return t, nil
	case json.Number:
		return canonicalNumber(t)
	default:
		return v, nil
	}
}

// canonicalNumber spells a number the same way regardless of how the store
// echoes it back (1e2, 100 and 100.0 all become 100).
func canonicalNumber(n json.Number) (json.Number, error) {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return json.Number(strconv.FormatInt(i, 10)), nil
	}

	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return "", fmt.Errorf("unsupported metadata number %q", n.String())
	}

	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return json.Number(strconv.FormatInt(int64(f), 10)), nil
	}

	return json.Number(strconv.FormatFloat(f, 'f', -1, 64)), nil
}
