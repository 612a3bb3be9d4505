package utils

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// MaxProofSize bounds uploaded proof-of-payment files.
const MaxProofSize = 10 << 20

var proofTypes = map[string]string{
	"image/png":       "png",
	"image/jpeg":      "jpg",
	"image/webp":      "webp",
	"application/pdf": "pdf",
}

// ProofExtension picks the stored extension for an upload, preferring the
// declared content type over the client's file name.
func ProofExtension(filename, contentType string) (string, error) {
	if ext, ok := proofTypes[strings.ToLower(strings.TrimSpace(contentType))]; ok {
		return ext, nil
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	switch ext {
	case "png", "webp", "pdf":
		return ext, nil
	case "jpg", "jpeg":
		return "jpg", nil
	}
	return "", fmt.Errorf("unsupported proof file type %q", contentType)
}

// ProofKey returns the object key for a user's proof uploaded at t.
func ProofKey(userID, ext string, t time.Time) string {
	return fmt.Sprintf("payment-proofs/%s/payment-%d.%s", userID, t.Unix(), ext)
}
