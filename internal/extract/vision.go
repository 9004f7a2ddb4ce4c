package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/diewo77/smart-invoices/internal/config"
	"google.golang.org/api/option"
)

// Errors reported by the Cloud Vision recognizer.
var (
	// ErrEmptyDocument is returned when the image contains no readable text.
	ErrEmptyDocument = errors.New("image contains no readable text")

	// ErrRecognitionFailed is returned when the Vision API rejects the request.
	ErrRecognitionFailed = errors.New("text recognition failed")
)

// GoogleVision recognizes text with Google Cloud Vision document text detection.
type GoogleVision struct {
	client *vision.ImageAnnotatorClient
}

// NewGoogleVision connects with inline credentials, a credentials file, or the
// default application credentials, in that order.
func NewGoogleVision(ctx context.Context, cfg config.VisionConfig) (*GoogleVision, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create vision client: %w", err)
	}
	return &GoogleVision{client: client}, nil
}

// Recognize runs DOCUMENT_TEXT_DETECTION on one image. Confidence is the mean page
// confidence reported by the API.
func (g *GoogleVision) Recognize(ctx context.Context, image []byte, _ string) (*Recognition, error) {
	resp, err := g.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: image},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognitionFailed, err)
	}
	if len(resp.GetResponses()) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrRecognitionFailed)
	}
	return recognitionFromResponse(resp.GetResponses()[0])
}

func (g *GoogleVision) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func recognitionFromResponse(r *visionpb.AnnotateImageResponse) (*Recognition, error) {
	if r.GetError() != nil && r.GetError().GetCode() != 0 {
		return nil, fmt.Errorf("%w: %s", ErrRecognitionFailed, r.GetError().GetMessage())
	}
	doc := r.GetFullTextAnnotation()
	if doc == nil || strings.TrimSpace(doc.GetText()) == "" {
		return nil, ErrEmptyDocument
	}

	var sum float64
	pages := doc.GetPages()
	for _, p := range pages {
		sum += float64(p.GetConfidence())
	}
	var confidence float64
	if len(pages) > 0 {
		confidence = sum / float64(len(pages))
	}
	return &Recognition{Text: doc.GetText(), Confidence: confidence}, nil
}
