package routing

// Provider identifies an interchangeable generation capability. Providers
// are stateless from the engine's point of view; reachability is probed at
// startup and on refresh, never per request.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderClaude     Provider = "claude"
	ProviderGemini     Provider = "gemini"
	ProviderElevenLabs Provider = "elevenlabs"

	// ProviderFallback is a synthetic sentinel meaning "no capability
	// succeeded". It never appears in the routing table.
	ProviderFallback Provider = "fallback"
)

// Providers lists every real provider in a stable order. The fallback
// sentinel is excluded.
func Providers() []Provider {
	return []Provider{
		ProviderOpenAI,
		ProviderClaude,
		ProviderGemini,
		ProviderElevenLabs,
	}
}

// Valid reports whether p is a real (non-sentinel) provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderClaude, ProviderGemini, ProviderElevenLabs:
		return true
	}
	return false
}

// Preferences holds the hard-coded ordered alternates per category. The
// first entry is the configured primary; Repair and the fallback walk
// substitute later entries in order.
var Preferences = map[Category][]Provider{
	CategoryCreative:      {ProviderClaude, ProviderOpenAI, ProviderGemini},
	CategoryStrategic:     {ProviderOpenAI, ProviderClaude, ProviderGemini},
	CategoryInformational: {ProviderGemini, ProviderOpenAI, ProviderClaude},
	CategoryEmotional:     {ProviderClaude, ProviderGemini, ProviderOpenAI},
	CategoryTechnical:     {ProviderOpenAI, ProviderGemini, ProviderClaude},
	CategoryVoice:         {ProviderElevenLabs, ProviderOpenAI, ProviderGemini},
}
