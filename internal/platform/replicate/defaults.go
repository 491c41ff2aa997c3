package replicate

// DefaultImageVersion is the flux model version used when neither the task
// nor the configuration names one.
const DefaultImageVersion = "70a95a700a394552368f765fee2e22aa77d6addb933ba3ad914683c5e11940e1"

// DefaultFluxParams returns a fresh copy of the default image parameters.
func DefaultFluxParams() map[string]any {
	return map[string]any{
		"model":               "dev",
		"go_fast":             false,
		"lora_scale":          1,
		"megapixels":          "1",
		"num_outputs":         1,
		"aspect_ratio":        "1:1",
		"output_format":       "jpg",
		"guidance_scale":      3,
		"output_quality":      80,
		"prompt_strength":     0.8,
		"extra_lora_scale":    1,
		"num_inference_steps": 28,
	}
}

// MergeParams returns base overlaid with override. Neither map is modified.
func MergeParams(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
