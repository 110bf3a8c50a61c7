package service

import (
	"strings"

	"github.com/verdealab/ceres/internal/domain/routing"
)

// categoryKeywords is the fixed keyword table driving classification. The
// product serves Portuguese-speaking agronomy users, so each category
// carries both Portuguese and English keywords. Matching is
// case-insensitive substring matching against the lower-cased input.
var categoryKeywords = map[routing.Category][]string{
	routing.CategoryCreative: {
		"crie", "criar", "escreva", "história", "poema", "imagine",
		"create", "write", "story", "poem", "design", "invent",
	},
	routing.CategoryStrategic: {
		"plano", "estratégia", "planejar", "decidir", "meta", "safra",
		"plan", "strategy", "decide", "goal", "roadmap", "prioritize",
	},
	routing.CategoryInformational: {
		"informação", "dados", "previsão", "preço", "cotação", "mercado",
		"o que é", "quando", "quanto",
		"information", "data", "forecast", "price", "market",
		"what is", "when", "how much",
	},
	routing.CategoryEmotional: {
		"sinto", "preocupado", "ansioso", "medo", "triste", "desabafar",
		"feel", "worried", "anxious", "afraid", "sad", "stress",
	},
	routing.CategoryTechnical: {
		"erro", "código", "configurar", "instalar", "sensor", "irrigação",
		"error", "bug", "code", "configure", "install", "api",
	},
	routing.CategoryVoice: {
		"fale", "voz", "áudio", "ouvir", "leia em voz",
		"speak", "voice", "audio", "listen", "read aloud",
	},
}

// Classifier maps free text onto a command category by keyword scoring.
// It is deterministic, has no side effects and never fails: ties and the
// all-zero case resolve to the default category.
type Classifier struct{}

// NewClassifier creates a Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify returns the category whose keywords match the input most
// often. Categories are scanned in their stable order, so a tie keeps the
// earlier winner only when it strictly beats the rest; equal top scores
// fall back to the default category.
func (c *Classifier) Classify(text string) routing.Category {
	lowered := strings.ToLower(text)

	best := routing.DefaultCategory
	bestScore := 0
	tied := false

	for _, cat := range routing.Categories() {
		score := 0
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(lowered, kw) {
				score++
			}
		}
		switch {
		case score > bestScore:
			best = cat
			bestScore = score
			tied = false
		case score == bestScore && score > 0 && cat != best:
			tied = true
		}
	}

	if bestScore == 0 || tied {
		return routing.DefaultCategory
	}
	return best
}
