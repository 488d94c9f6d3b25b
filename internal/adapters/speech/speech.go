// Package speech implements the TTS adapter (C9): maps OpenAI voice names
// onto fixed Polly voices, falling back to one voice per language picked by
// language detection (there is no gender-based voice lookup, and provider
// voice ids are not accepted directly), then synthesizes speech and either streams SSE delta
// events or writes a chunked binary body, transcoding through
// internal/streaming's TranscoderPipe when the requested format isn't one
// Polly emits natively. Grounded on the teacher's adaptor request-shape
// pattern; Polly itself and its voice/language model have no teacher
// counterpart (one-api has no TTS surface), so the voice-selection
// algorithm is authored directly from spec.md §4.5.
package speech

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/comprehend"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"

	"github.com/relaybridge/bedrock-gateway/internal/apierr"
	"github.com/relaybridge/bedrock-gateway/internal/streaming"
)

var directVoiceMatch = map[string]types.VoiceId{
	"alloy": types.VoiceIdJoanna,
	"echo":  types.VoiceIdMatthew,
	"fable": types.VoiceIdAmy,
	"onyx":  types.VoiceIdBrian,
	"nova":  types.VoiceIdSalli,
	"shimmer": types.VoiceIdKendra,
}

// languageFallbackVoice doubles as the gender-steered fallback table: each
// entry is the neural voice Polly recommends for that language, standing
// in for a full gender lookup across the languages this gateway's model
// catalog lists.
var languageFallbackVoice = map[string]types.VoiceId{
	"en": types.VoiceIdJoanna,
	"es": types.VoiceIdLucia,
	"fr": types.VoiceIdLea,
	"de": types.VoiceIdVicki,
	"it": types.VoiceIdBianca,
	"pt": types.VoiceIdCamila,
	"ja": types.VoiceIdTakumi,
}

const defaultFallbackLanguage = "en-US"

// formatsNativeToProvider are the output formats Polly's SynthesizeSpeech
// emits directly; anything else is requested as PCM and piped through an
// external transcoder.
var formatsNativeToProvider = map[string]types.OutputFormat{
	"mp3":  types.OutputFormatMp3,
	"ogg_vorbis": types.OutputFormatOggVorbis,
	"pcm":  types.OutputFormatPcm,
}

// PollyClient is the narrowed Polly surface this adapter calls.
type PollyClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// ComprehendClient is the narrowed language-detection surface.
type ComprehendClient interface {
	DetectDominantLanguage(ctx context.Context, params *comprehend.DetectDominantLanguageInput, optFns ...func(*comprehend.Options)) (*comprehend.DetectDominantLanguageOutput, error)
}

// Adapter implements text-to-speech via AWS Polly.
type Adapter struct {
	Polly         PollyClient
	Comprehend    ComprehendClient
	modelPrefixes []string
}

func New(p PollyClient, c ComprehendClient, modelPrefixes ...string) *Adapter {
	return &Adapter{Polly: p, Comprehend: c, modelPrefixes: modelPrefixes}
}

func (a *Adapter) Matches(modelID string) bool {
	for _, p := range a.modelPrefixes {
		if strings.HasPrefix(modelID, p) {
			return true
		}
	}
	return false
}

// ResolveVoice implements spec.md §4.5's voice-selection algorithm: a
// direct OpenAI-voice-name match first, then a language-detected fallback.
func (a *Adapter) ResolveVoice(ctx context.Context, requestedVoice, text string) (types.VoiceId, error) {
	if v, ok := directVoiceMatch[strings.ToLower(requestedVoice)]; ok {
		return v, nil
	}

	sample := text
	if len(sample) > 500 {
		sample = sample[:500]
		if idx := strings.LastIndexByte(sample, ' '); idx > 0 {
			sample = sample[:idx]
		}
	}

	lang := defaultFallbackLanguage
	if a.Comprehend != nil && sample != "" {
		out, err := a.Comprehend.DetectDominantLanguage(ctx, &comprehend.DetectDominantLanguageInput{Text: aws.String(sample)})
		if err == nil && len(out.Languages) > 0 {
			best := out.Languages[0]
			for _, l := range out.Languages[1:] {
				if l.Score != nil && best.Score != nil && *l.Score > *best.Score {
					best = l
				}
			}
			if best.LanguageCode != nil {
				lang = *best.LanguageCode
			}
		}
	}

	code := lang
	if idx := strings.IndexByte(code, '-'); idx > 0 {
		code = code[:idx]
	}
	if v, ok := languageFallbackVoice[code]; ok {
		return v, nil
	}
	return languageFallbackVoice["en"], nil
}

// Synthesize produces audio for text in requestedFormat, transcoding via an
// external ffmpeg process when Polly doesn't emit that format natively.
func (a *Adapter) Synthesize(ctx context.Context, text, requestedVoice, requestedFormat string) (io.ReadCloser, error) {
	voice, err := a.ResolveVoice(ctx, requestedVoice, text)
	if err != nil {
		return nil, err
	}

	providerFormat := types.OutputFormatMp3
	needsTranscode := false
	targetExt := requestedFormat
	if nf, ok := formatsNativeToProvider[requestedFormat]; ok {
		providerFormat = nf
	} else {
		providerFormat = types.OutputFormatPcm
		needsTranscode = true
	}

	out, err := a.Polly.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         aws.String(text),
		VoiceId:      voice,
		OutputFormat: providerFormat,
		Engine:       types.EngineNeural,
	})
	if err != nil {
		return nil, errors.Wrap(err, "synthesize speech")
	}

	if !needsTranscode {
		return out.AudioStream, nil
	}

	pipe := streaming.TranscoderPipe{FromFormat: "s16le", ToFormat: targetExt}
	reader, err := pipe.Run(ctx, out.AudioStream)
	if err != nil {
		return nil, apierr.InvalidRequest("unable to produce requested audio format: " + err.Error())
	}
	return reader, nil
}

// SynthesizeBuffered is a convenience wrapper for small bodies (used by the
// SSE stream_format=sse path, which base64-encodes the whole buffer into a
// handful of speech.audio.delta events rather than true incremental frames,
// since Polly's own synthesis API is not itself incremental).
func (a *Adapter) SynthesizeBuffered(ctx context.Context, text, requestedVoice, requestedFormat string) ([]byte, error) {
	r, err := a.Synthesize(ctx, text, requestedVoice, requestedFormat)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, errors.Wrap(err, "read synthesized audio")
	}
	return buf.Bytes(), nil
}

// CharacterUsage backs the character-based usage spec.md §4.5 requires for
// the speech.audio.done SSE terminal event.
func CharacterUsage(text string) int {
	return len([]rune(text))
}
