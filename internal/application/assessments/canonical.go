package assessments

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

// Canonicalize returns the RFC 8785 form of the frozen record and its
// sha256 hex digest. Equal assessments always produce equal bytes.
func Canonicalize(a document.Assessment) ([]byte, string, error) {
	raw, err := a.Marshal()
	if err != nil {
		return nil, "", fmt.Errorf("marshal assessment %s: %w", a.ID, err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, "", fmt.Errorf("canonicalize assessment %s: %w", a.ID, err)
	}
	sum := sha256.Sum256(canonical)
	return canonical, hex.EncodeToString(sum[:]), nil
}
