package describer

import "context"

// Prompt is the instruction sent alongside every image.
const Prompt = "What is in this image?"

// Describer describes an image using a specific multimodal LLM.
type Describer interface {
	// Name returns the name of the backend, e.g. "openrouter" or "llama"
	Name() string

	// Model returns the model identifier requests are issued against.
	Model() string

	// DescribeImage returns the model's text answer for the image carried by
	// dataURL, which must be a base64 data URL (data:<mime>;base64,...). The
	// provided ctx is used as a parent context for the request to the LLM
	// server.
	DescribeImage(ctx context.Context, dataURL string) (string, error)

	// IsHealthy returns whether the LLM server is reachable.
	IsHealthy(ctx context.Context) bool
}
