package openaiapi

import "encoding/json"

// EmbeddingsRequest is the POST /v1/embeddings body. Input may be a single
// string or a list of strings (json.RawMessage defers that decision to the
// embeddings adapter, which classifies each item by content sniff).
type EmbeddingsRequest struct {
	Model        string          `json:"model"`
	Input        json.RawMessage `json:"input"`
	EncodingFormat string        `json:"encoding_format,omitempty"`
	Dimensions   *int            `json:"dimensions,omitempty"`
	ForceS3Data  bool            `json:"force_s3_data,omitempty"`
}

type Embedding struct {
	Index     int       `json:"index"`
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
}

type EmbeddingsResponse struct {
	Object string      `json:"object"`
	Data   []Embedding `json:"data"`
	Model  string      `json:"model"`
	Usage  Usage       `json:"usage"`
}

// ImageGenerationRequest is the POST /v1/images/generations body.
type ImageGenerationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              *int   `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
	Style          string `json:"style,omitempty"`
	Stream         bool   `json:"stream,omitempty"`
}

type ImageData struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type ImageGenerationResponse struct {
	Created int64       `json:"created"`
	Data    []ImageData `json:"data"`
	Usage   *Usage      `json:"usage,omitempty"`
}

// SpeechRequest is the POST /v1/audio/speech body.
type SpeechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
	StreamFormat   string  `json:"stream_format,omitempty"`
}

// TranscriptionSegment is one element of a verbose_json transcription's
// "segments" array; Tokens, AvgLogprob and NoSpeechProb are left as zero
// stubs since Transcribe does not report per-token confidence the way
// Whisper does.
type TranscriptionSegment struct {
	ID               int     `json:"id"`
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Text             string  `json:"text"`
	Tokens           []int   `json:"tokens"`
	AvgLogprob       float64 `json:"avg_logprob"`
	NoSpeechProb     float64 `json:"no_speech_prob"`
}

type TranscriptionUsage struct {
	Type     string `json:"type"`
	Seconds  int    `json:"seconds"`
}

// TranscriptionResponse covers both the "json" and "verbose_json" response
// formats; Segments is nil unless verbose_json was requested.
type TranscriptionResponse struct {
	Text     string                  `json:"text"`
	Language string                  `json:"language,omitempty"`
	Duration float64                 `json:"duration,omitempty"`
	Segments []TranscriptionSegment  `json:"segments,omitempty"`
	Usage    *TranscriptionUsage     `json:"usage,omitempty"`
}

// TranslationResponse is the POST /v1/audio/translations body shape
// (always English text, same envelope as transcription minus language).
type TranslationResponse struct {
	Text     string              `json:"text"`
	Duration float64             `json:"duration,omitempty"`
	Usage    *TranscriptionUsage `json:"usage,omitempty"`
}
