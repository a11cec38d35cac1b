// Package koreanenc recovers text files served in Korean legacy encodings.
// The portal hands out csv files in EUC-KR (or its CP949 superset, which
// x/text folds into the same codec) while everything downstream expects
// UTF-8.
package koreanenc

import (
	"bytes"
	"errors"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

var errNotDecodable = errors.New("data does not decode under the legacy encoding")

// decodeStrict decodes data, treating any replacement rune in the output as
// a failure. The x/text decoders substitute U+FFFD for invalid bytes rather
// than erroring, which would otherwise let binary data masquerade as text.
func decodeStrict(data []byte, enc encoding.Encoding) ([]byte, error) {
	decoder := enc.NewDecoder()
	out, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return nil, err
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return nil, errNotDecodable
	}
	return out, nil
}

// RecoverUTF8 converts data to UTF-8 if it is valid EUC-KR/CP949. Data that
// already is valid UTF-8 comes back unchanged with ok=false (nothing to do);
// data that decodes under neither encoding also comes back unchanged with
// ok=false so a binary file is never corrupted by a misguided transcode.
func RecoverUTF8(data []byte) (out []byte, ok bool) {
	if utf8.Valid(data) {
		return data, false
	}
	decoded, err := decodeStrict(data, korean.EUCKR)
	if err != nil || !utf8.Valid(decoded) {
		return data, false
	}
	return decoded, true
}

// RecoverFile rewrites path in place as UTF-8 when its contents decode from
// the legacy encodings. Returns whether a rewrite happened.
func RecoverFile(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	out, ok := RecoverUTF8(data)
	if !ok {
		return false, nil
	}
	err = os.WriteFile(path, out, 0644)
	if err != nil {
		return false, err
	}
	return true, nil
}
