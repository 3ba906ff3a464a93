package dcrl

import "encoding/json"

// CanonicalBytes returns the serialized form of a payload used for content
// hashing and signing. Struct fields encode in declaration order, so the
// output is deterministic for every type in this package.
func CanonicalBytes(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
