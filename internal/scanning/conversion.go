package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/heic"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
)

// transcriptionPrompt is the shared prompt used by all vision backends
const transcriptionPrompt = `You are transcribing a scanned bill, invoice or receipt. Read every piece of text in the image and return it as plain text.

Rules:
- Preserve the reading order and line breaks of the document
- Keep each line item on a single line with its description, quantity and price
- Keep labels such as "Invoice #", "Date", "Subtotal", "Tax" and "Total" next to their values
- Copy numbers, currency symbols and dates exactly as printed
- Do not summarize, translate, correct or add commentary
- Do not use markdown code blocks
- If the image contains no readable text, return an empty response`

// encodePNG encodes a rendered page as PNG
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// toPNG converts any supported image format to PNG. PNG input is returned
// unchanged.
func toPNG(imageData []byte, mimeType string) ([]byte, error) {
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return encodePNG(img)
	}

	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	if format == "png" {
		return imageData, nil
	}
	return encodePNG(img)
}

// isHEICFormat checks for an ftyp box with a HEIC/HEIF brand at offset 4
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
