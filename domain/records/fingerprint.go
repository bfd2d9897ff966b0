package records

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// volatileFields never take part in a fingerprint.
var volatileFields = []string{
	"createdAt", "updatedAt", "syncFingerprint", "lastSynced",
	"PK", "SK", "gsi1pk", "gsi1sk",
}

// CanonicalJSON serializes v with sorted keys at every depth. Going through
// a generic map makes struct field order irrelevant.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// Fingerprint returns the MD5 hex digest of the record's semantic fields.
// Keys, GSI fields, timestamps and the stored fingerprint are ignored.
func Fingerprint(r *Record) (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", r.PK, err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", r.PK, err)
	}
	for _, f := range volatileFields {
		delete(fields, f)
	}
	canonical, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", r.PK, err)
	}
	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// MustFingerprint is Fingerprint for records known to serialize.
func MustFingerprint(r *Record) string {
	fp, err := Fingerprint(r)
	if err != nil {
		panic(err)
	}
	return fp
}

// DocumentFingerprint fingerprints the record a document represents.
func DocumentFingerprint(d *Document) (string, error) {
	return Fingerprint(FromDocument(d))
}

// StateHash digests two id->fingerprint maps into one MD5 hex string. Pairs
// are sorted so the result does not depend on scan order.
func StateHash(store, index map[string]string) string {
	lines := make([]string, 0, len(store)+len(index))
	for id, fp := range store {
		lines = append(lines, "store:"+id+":"+fp)
	}
	for id, fp := range index {
		lines = append(lines, "index:"+id+":"+fp)
	}
	sort.Strings(lines)
	sum := md5.Sum([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
