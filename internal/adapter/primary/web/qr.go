package web

import (
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// QR image bounds in pixels.
const (
	MinQRSize     = 64
	MaxQRSize     = 1024
	DefaultQRSize = 256
)

// ErrInvalidQRSize rejects a requested QR size outside MinQRSize..MaxQRSize.
var ErrInvalidQRSize = fmt.Errorf("qr size must be between %d and %d pixels", MinQRSize, MaxQRSize)

// ShortcutURL is the sync endpoint a phone's shortcut posts to.
func ShortcutURL(baseURL, phoneID string) string {
	return strings.TrimRight(baseURL, "/") + "/api/sync?phone_id=" + url.QueryEscape(phoneID)
}

// ShortcutQR renders target as a PNG QR code with medium error correction.
// A zero size means DefaultQRSize.
func ShortcutQR(target string, size int) ([]byte, error) {
	if size == 0 {
		size = DefaultQRSize
	}
	if size < MinQRSize || size > MaxQRSize {
		return nil, ErrInvalidQRSize
	}
	return qrcode.Encode(target, qrcode.Medium, size)
}
