package openaiapi

// Model is one element of the GET /v1/models list, and the body of
// GET /v1/models/{id}.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the GET /v1/models envelope.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// AvailableModel is one element of GET /available_models, the gateway's own
// extension surfacing catalog metadata the OpenAI shape has no room for.
type AvailableModel struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Provider          string   `json:"provider"`
	Region            string   `json:"region"`
	InputModalities   []string `json:"input_modalities"`
	OutputModalities  []string `json:"output_modalities"`
	ResponseStreaming bool     `json:"response_streaming"`
	Legacy            bool     `json:"legacy"`
	InferenceProfileID string  `json:"inference_profile_id,omitempty"`
}
