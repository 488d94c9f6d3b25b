package catalog

import "strings"

// family classifies a Bedrock model id by the provider prefix before the
// first dot, matching the teacher's GetProviderCapabilities keying
// (relay/adaptor/aws/utils/validator.go) adapted to this gateway's
// Capabilities shape.
func family(modelID string) string {
	id := strings.ToLower(modelID)
	// Inference-profile ids carry a region prefix (e.g. "us.anthropic...").
	if dot := strings.Index(id, "."); dot != -1 {
		head := id[:dot]
		if head == "us" || head == "eu" || head == "apac" || head == "global" {
			id = id[dot+1:]
		}
	}
	switch {
	case strings.Contains(id, "anthropic") || strings.Contains(id, "claude"):
		return "anthropic"
	case strings.Contains(id, "deepseek"):
		return "deepseek"
	case strings.Contains(id, "llama"):
		return "llama"
	case strings.Contains(id, "mistral"):
		return "mistral"
	case strings.Contains(id, "amazon.nova") || strings.Contains(id, "amazon.titan"):
		return "nova"
	case strings.Contains(id, "cohere"):
		return "cohere"
	default:
		return "unknown"
	}
}

// CapabilitiesFor returns the capability table for a model id's provider
// family, used to resolve spec.md §9's first Open Question (reject
// unsupported parameters rather than silently drop or forward them).
func CapabilitiesFor(modelID string) Capabilities {
	switch family(modelID) {
	case "anthropic":
		return Capabilities{Tools: true, Thinking: true, ResponseFormat: true, TopK: true, AnthropicBeta: true}
	case "deepseek":
		return Capabilities{Thinking: true}
	case "llama":
		return Capabilities{Tools: true}
	case "mistral":
		return Capabilities{Tools: true}
	case "nova":
		return Capabilities{Tools: true, ResponseFormat: true}
	case "cohere":
		return Capabilities{}
	default:
		return Capabilities{}
	}
}
