package csvio

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectAndDecode returns the payload as UTF-8. Valid UTF-8 input passes
// through with any BOM stripped; anything else is treated as Shift-JIS,
// which is what the scheduling system's Windows exports use.
func DetectAndDecode(payload []byte) ([]byte, error) {
	payload = bytes.TrimPrefix(payload, utf8BOM)
	if utf8.Valid(payload) {
		return payload, nil
	}
	decoded, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), payload)
	if err != nil {
		return nil, fmt.Errorf("csvio: decode shift-jis payload: %w", err)
	}
	return decoded, nil
}
