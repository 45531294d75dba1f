// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

package core

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"

	qrcode "github.com/skip2/go-qrcode"
)

// QRRenderer turns the pairing ref string carried on a
// events.ConnectionUpdate into an image a caller can show a user,
// rather than the raw "ref,base64,base64,base64" text the authenticator
// emits on the event bus.
type QRRenderer struct {
	size int
}

// NewQRRenderer returns a renderer producing size x size images.
func NewQRRenderer(size int) *QRRenderer {
	if size <= 0 {
		size = 256
	}
	return &QRRenderer{size: size}
}

// PNG renders data as a PNG-encoded QR code.
func (r *QRRenderer) PNG(data string) ([]byte, error) {
	qr, err := qrcode.New(data, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("core: qr encode: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(r.size)); err != nil {
		return nil, fmt.Errorf("core: qr png encode: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL renders data as a QR code wrapped in a data: URL, suitable
// for embedding directly in an <img> tag.
func (r *QRRenderer) DataURL(data string) (string, error) {
	pngBytes, err := r.PNG(data)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes), nil
}
