package vision

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
)

const (
	emptyResponseMessage = "Failed to receive valid response Vision APIs; empty response received."
	readFailureMessage   = "Failed to read image bytes from provided resource."
)

// ImageAnnotator is the single Vision API call this template depends on.
// *vision.ImageAnnotatorClient satisfies it.
type ImageAnnotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
}

// Template runs image analysis through an injected annotator client. Every
// call is a single stateless request/response round trip over exactly one
// image; batching across images and retries stay with the SDK client.
type Template struct {
	annotator ImageAnnotator
	logger    zerolog.Logger
}

// NewTemplate wraps an annotator client. The template does not close the
// injected client.
func NewTemplate(annotator ImageAnnotator, logger zerolog.Logger) (*Template, error) {
	if annotator == nil {
		return nil, fmt.Errorf("image annotator cannot be nil")
	}
	return &Template{
		annotator: annotator,
		logger:    logger.With().Str("component", "VisionTemplate").Logger(),
	}, nil
}

// AnalyzeImage requests the given feature types against the image read from
// image. It returns the sole analysis result, or an *Error when the resource
// cannot be read, the batch response is empty, or the result carries an
// embedded error status.
func (t *Template) AnalyzeImage(ctx context.Context, image io.Reader, featureTypes ...visionpb.Feature_Type) (*visionpb.AnnotateImageResponse, error) {
	return t.AnalyzeImageWithContext(ctx, image, nil, featureTypes...)
}

// AnalyzeImageWithContext is AnalyzeImage with additional image-context
// hints. imageContext may be nil.
func (t *Template) AnalyzeImageWithContext(ctx context.Context, image io.Reader, imageContext *visionpb.ImageContext, featureTypes ...visionpb.Feature_Type) (*visionpb.AnnotateImageResponse, error) {
	content, err := io.ReadAll(image)
	if err != nil {
		return nil, &Error{Message: readFailureMessage, Cause: err}
	}

	request := &visionpb.AnnotateImageRequest{
		Image:        &visionpb.Image{Content: content},
		ImageContext: imageContext,
	}
	for _, featureType := range featureTypes {
		request.Features = append(request.Features, &visionpb.Feature{Type: featureType})
	}

	batch, err := t.annotator.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{request},
	})
	if err != nil {
		return nil, &Error{Message: "Image annotation request failed.", Cause: err}
	}

	responses := batch.GetResponses()
	if len(responses) == 0 {
		return nil, &Error{Message: emptyResponseMessage}
	}
	response := responses[0]
	if status := response.GetError(); status != nil {
		return nil, &Error{Message: status.GetMessage()}
	}
	return response, nil
}

// ExtractTextFromImage runs text detection and returns the recognized text.
// It returns an empty string when the image contains no detectable text.
func (t *Template) ExtractTextFromImage(ctx context.Context, image io.Reader) (string, error) {
	return t.ExtractTextFromImageWithContext(ctx, image, nil)
}

// ExtractTextFromImageWithContext is ExtractTextFromImage with additional
// image-context hints.
func (t *Template) ExtractTextFromImageWithContext(ctx context.Context, image io.Reader, imageContext *visionpb.ImageContext) (string, error) {
	response, err := t.AnalyzeImageWithContext(ctx, image, imageContext, visionpb.Feature_TEXT_DETECTION)
	if err != nil {
		return "", err
	}
	annotations := response.GetTextAnnotations()
	if len(annotations) == 0 {
		return "", nil
	}
	return annotations[0].GetDescription(), nil
}

// AnalyzeImageObject reads the image from a Cloud Storage object and
// analyzes it like AnalyzeImage. imageContext may be nil.
func (t *Template) AnalyzeImageObject(ctx context.Context, object *storage.ObjectHandle, imageContext *visionpb.ImageContext, featureTypes ...visionpb.Feature_Type) (*visionpb.AnnotateImageResponse, error) {
	reader, err := object.NewReader(ctx)
	if err != nil {
		return nil, &Error{Message: readFailureMessage, Cause: err}
	}
	defer reader.Close()
	return t.AnalyzeImageWithContext(ctx, reader, imageContext, featureTypes...)
}

// ExtractTextFromImageObject runs text detection on a Cloud Storage object.
func (t *Template) ExtractTextFromImageObject(ctx context.Context, object *storage.ObjectHandle, imageContext *visionpb.ImageContext) (string, error) {
	reader, err := object.NewReader(ctx)
	if err != nil {
		return "", &Error{Message: readFailureMessage, Cause: err}
	}
	defer reader.Close()
	return t.ExtractTextFromImageWithContext(ctx, reader, imageContext)
}
