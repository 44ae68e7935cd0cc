package vision

import (
	"context"
	"fmt"

	visionapi "cloud.google.com/go/vision/v2/apiv1"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// NewGoogleTemplate constructs a Template over a real ImageAnnotatorClient.
// The returned close func releases the client's connection and must be
// called when the template is no longer needed.
func NewGoogleTemplate(ctx context.Context, logger zerolog.Logger, opts ...option.ClientOption) (*Template, func() error, error) {
	client, err := visionapi.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("vision.NewImageAnnotatorClient: %w", err)
	}
	template, err := NewTemplate(client, logger)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return template, client.Close, nil
}
