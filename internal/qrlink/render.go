package qrlink

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const minPNGSize = 64

// RenderPNG draws payload as a square PNG of size pixels for printing on
// table cards.
func RenderPNG(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	if size < minPNGSize {
		size = minPNGSize
	}

	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("rendering qr code: %w", err)
	}
	return png, nil
}
