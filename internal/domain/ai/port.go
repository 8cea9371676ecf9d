package ai

import (
	"context"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

// SemanticValidator checks the extracted text of a document for internal
// contradictions (dates, amounts, names that disagree).
type SemanticValidator interface {
	Validate(ctx context.Context, ext document.Extraction) (document.SemanticResult, error)
}

// VisualClassifier estimates the probability, in [0,1], that an image was
// produced by a generative model.
type VisualClassifier interface {
	ClassifySynthetic(ctx context.Context, img document.ImageAsset) (float64, error)
}
