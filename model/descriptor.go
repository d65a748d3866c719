package model

// ModelDescriptor identifies which model a StreamFn call should target,
// independent of the per-call Request payload: Request carries a turn's
// messages/tools/options, while ModelDescriptor carries the comparatively
// static choice of provider and model that a caller configures once per run.
// Grounded on the provider model-catalog shape (id/provider/class) used
// elsewhere in the examples' model registries.
type ModelDescriptor struct {
	// Provider identifies the backing model provider (for example,
	// "anthropic", "bedrock").
	Provider string

	// Model is the provider-specific model identifier. Takes precedence over
	// ModelClass when both are set.
	Model string

	// ModelClass selects a model family when Model is not specified.
	ModelClass ModelClass
}
