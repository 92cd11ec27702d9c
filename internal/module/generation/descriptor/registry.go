package descriptor

import (
	"fmt"
	"slices"

	"github.com/artboard/server/internal/module/generation/provider"
)

// Output formats.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatWebP = "webp"
)

// DefaultOutputFormat is used when a request leaves the format empty.
const DefaultOutputFormat = FormatPNG

// ValidOutputFormat reports whether f is a supported output format.
func ValidOutputFormat(f string) bool {
	switch f {
	case FormatPNG, FormatJPEG, FormatWebP:
		return true
	}
	return false
}

// Request is a provider-neutral generation request.
type Request struct {
	Prompt            string
	ReferenceImageURL string
	Width             int
	Height            int
	OutputFormat      string
}

// Descriptor turns a Request into one provider's model id and request body.
type Descriptor interface {
	Provider() string
	ModelID(req *Request) string
	Payload(req *Request) map[string]any
	// OutputFormats lists the formats the model can be asked for.
	OutputFormats() []string
}

// Config overrides the model ids submitted to each provider.
type Config struct {
	ReplicateModel    string
	FalModel          string
	FalReferenceModel string

	// DisableSafetyChecker turns off the queue provider's content filter.
	DisableSafetyChecker bool
}

// DefaultConfig returns the default model selection.
func DefaultConfig() *Config {
	return &Config{
		ReplicateModel:    "bytedance/seedream-4",
		FalModel:          "fal-ai/bytedance/seedream/v4/text-to-image",
		FalReferenceModel: "fal-ai/bytedance/seedream/v4/edit",
	}
}

// Registry holds one descriptor per provider.
type Registry struct {
	descriptors map[string]Descriptor
}

// NewRegistry creates a registry with the built-in descriptors.
// Empty fields in cfg keep their defaults.
func NewRegistry(cfg *Config) *Registry {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	pick := func(v, fallback string) string {
		if v != "" {
			return v
		}
		return fallback
	}

	r := &Registry{descriptors: make(map[string]Descriptor)}
	r.Register(&replicateDescriptor{
		model: pick(cfg.ReplicateModel, def.ReplicateModel),
	})
	r.Register(&falDescriptor{
		model:          pick(cfg.FalModel, def.FalModel),
		referenceModel: pick(cfg.FalReferenceModel, def.FalReferenceModel),
		safetyChecker:  !cfg.DisableSafetyChecker,
	})
	return r
}

// Register adds or replaces the descriptor for d.Provider().
func (r *Registry) Register(d Descriptor) {
	r.descriptors[d.Provider()] = d
}

// Get returns the descriptor for providerName.
func (r *Registry) Get(providerName string) (Descriptor, error) {
	d, ok := r.descriptors[providerName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, providerName)
	}
	return d, nil
}

// SupportsFormat reports whether providerName's model can produce format.
func (r *Registry) SupportsFormat(providerName, format string) bool {
	d, err := r.Get(providerName)
	if err != nil {
		return false
	}
	return slices.Contains(d.OutputFormats(), format)
}

// Build resolves the model id and payload for providerName. An empty
// OutputFormat leaves the model's default.
func (r *Registry) Build(providerName string, req *Request) (string, map[string]any, error) {
	d, err := r.Get(providerName)
	if err != nil {
		return "", nil, err
	}
	if req.OutputFormat != "" && !slices.Contains(d.OutputFormats(), req.OutputFormat) {
		return "", nil, fmt.Errorf("%w: %s cannot produce %q", ErrUnsupportedOutputFormat, providerName, req.OutputFormat)
	}
	return d.ModelID(req), d.Payload(req), nil
}

// replicateDescriptor targets prediction-style models that take a ratio label
// and a size tier rather than pixels.
type replicateDescriptor struct {
	model string
}

func (d *replicateDescriptor) Provider() string { return provider.Replicate }

func (d *replicateDescriptor) ModelID(*Request) string { return d.model }

func (d *replicateDescriptor) OutputFormats() []string {
	return []string{FormatPNG, FormatJPEG, FormatWebP}
}

// replicateFormats maps output formats onto the prediction API's names.
var replicateFormats = map[string]string{
	FormatPNG:  "png",
	FormatJPEG: "jpg",
	FormatWebP: "webp",
}

func (d *replicateDescriptor) Payload(req *Request) map[string]any {
	ratio, tier := Classify(req.Width, req.Height)
	payload := map[string]any{
		"prompt":       req.Prompt,
		"aspect_ratio": string(ratio),
		"size":         string(tier),
		"max_images":   1,
	}
	if req.ReferenceImageURL != "" {
		payload["image_input"] = []string{req.ReferenceImageURL}
	}
	if f, ok := replicateFormats[req.OutputFormat]; ok {
		payload["output_format"] = f
	}
	return payload
}

// falDescriptor targets queue-style models that take explicit pixel sizes and
// use a separate endpoint for reference-image edits.
type falDescriptor struct {
	model          string
	referenceModel string
	safetyChecker  bool
}

func (d *falDescriptor) Provider() string { return provider.Fal }

// Queue models encode png and jpeg only.
func (d *falDescriptor) OutputFormats() []string {
	return []string{FormatPNG, FormatJPEG}
}

func (d *falDescriptor) ModelID(req *Request) string {
	if req.ReferenceImageURL != "" {
		return d.referenceModel
	}
	return d.model
}

func (d *falDescriptor) Payload(req *Request) map[string]any {
	width, height := req.Width, req.Height
	if width <= 0 || height <= 0 {
		width, height, _ = Dimensions(FallbackRatio, FallbackTier)
	}

	payload := map[string]any{
		"prompt": req.Prompt,
		"image_size": map[string]int{
			"width":  width,
			"height": height,
		},
		"num_images":            1,
		"enable_safety_checker": d.safetyChecker,
	}
	if req.ReferenceImageURL != "" {
		payload["image_urls"] = []string{req.ReferenceImageURL}
	}
	if req.OutputFormat != "" {
		payload["output_format"] = req.OutputFormat
	}
	return payload
}
