package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Fingerprint identifies an (input data, country, configuration) triple for caching.
type Fingerprint Hash

func (f Fingerprint) String() string { return Hash(f).String() }

// FingerprintInput is the canonical content hashed into a Fingerprint.
type FingerprintInput struct {
	Timestamps []int64
	Columns    map[string][]float64
	Country    string
	Config     map[string]interface{}
}

// ComputeFingerprint hashes columns and config keys in sorted order so that map
// iteration order never changes the result.
func ComputeFingerprint(in FingerprintInput) Fingerprint {
	var data strings.Builder

	for _, ts := range in.Timestamps {
		fmt.Fprintf(&data, "%d,", ts)
	}
	data.WriteString("|")

	names := make([]string, 0, len(in.Columns))
	for name := range in.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data.WriteString(name)
		data.WriteString(":")
		for _, v := range in.Columns[name] {
			if math.IsNaN(v) {
				data.WriteString("nan,")
				continue
			}
			fmt.Fprintf(&data, "%x,", math.Float64bits(v))
		}
		data.WriteString(";")
	}

	data.WriteString("|")
	data.WriteString(strings.ToUpper(strings.TrimSpace(in.Country)))
	data.WriteString("|")

	keys := make([]string, 0, len(in.Config))
	for k := range in.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		data.WriteString(key)
		data.WriteString(fmt.Sprintf("=%v;", in.Config[key]))
	}

	return Fingerprint(NewHash([]byte(data.String())))
}
