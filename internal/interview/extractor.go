package interview

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/insightloop/insightloop/internal/llm"
)

// List caps of the extraction output contract. Anything beyond a cap is
// clamped after validation rather than rejected.
const (
	maxPainPoints   = 5
	maxQuotes       = 5
	maxObjections   = 3
	maxFeatureIdeas = 3
)

var insightSchema = llm.GenerateSchema[Insight]()

// insightFields are the required top-level keys of the extraction output.
var insightFields = []string{"summary", "painPoints", "quotes", "objections", "featureIdeas"}

// Extractor turns a complete transcript into a structured Insight with a
// single generation call. It runs at a lower temperature than the turn
// policy to favour extractive output, and validates the response shape
// before anything is accepted. A failed or malformed extraction is terminal
// for the attempt: no partial result is ever returned.
type Extractor struct {
	gen         llm.Generator
	temperature float64
	maxTokens   int
	logger      *log.Logger
}

func NewExtractor(gen llm.Generator, temperature float64, maxTokens int, logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags)
	}
	return &Extractor{gen: gen, temperature: temperature, maxTokens: maxTokens, logger: logger}
}

// Extract produces the Insight for a concluded session's full transcript.
func (e *Extractor) Extract(ctx context.Context, project Project, turns []Turn) (Insight, error) {
	if len(turns) == 0 {
		return Insight{}, fmt.Errorf("%w: empty transcript", ErrExtraction)
	}
	raw, err := e.gen.CompleteJSON(ctx, llm.JSONRequest{
		SchemaName:   "Insight",
		Schema:       insightSchema,
		Instructions: extractionInstructions,
		Input: fmt.Sprintf(extractionInput,
			project.ProductIdea, project.Persona.Name, project.Persona.Company, renderTranscript(turns)),
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		return Insight{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	insight, err := ValidateInsight([]byte(raw))
	if err != nil {
		e.logger.Printf("rejected extraction for session output: %v", err)
		return Insight{}, err
	}
	e.logger.Printf("extracted insight: %d pain points, %d quotes, %d objections, %d feature ideas",
		len(insight.PainPoints), len(insight.Quotes), len(insight.Objections), len(insight.FeatureIdeas))
	return insight, nil
}

// ValidateInsight enforces the output contract: valid JSON carrying exactly
// the five top-level fields, with list lengths clamped to their caps.
func ValidateInsight(raw []byte) (Insight, error) {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(raw, &shape); err != nil {
		return Insight{}, fmt.Errorf("%w: not a JSON object: %v", ErrExtraction, err)
	}
	for _, field := range insightFields {
		if _, ok := shape[field]; !ok {
			return Insight{}, fmt.Errorf("%w: missing field %q", ErrExtraction, field)
		}
	}
	var insight Insight
	if err := json.Unmarshal(raw, &insight); err != nil {
		return Insight{}, fmt.Errorf("%w: malformed fields: %v", ErrExtraction, err)
	}
	var summaryShape map[string]json.RawMessage
	if err := json.Unmarshal(shape["summary"], &summaryShape); err != nil {
		return Insight{}, fmt.Errorf("%w: summary is not an object: %v", ErrExtraction, err)
	}
	for _, field := range []string{"whatWeLearned", "whatToBuildNext"} {
		if _, ok := summaryShape[field]; !ok {
			return Insight{}, fmt.Errorf("%w: summary missing %q", ErrExtraction, field)
		}
	}
	if len(insight.PainPoints) > maxPainPoints {
		insight.PainPoints = insight.PainPoints[:maxPainPoints]
	}
	if len(insight.Quotes) > maxQuotes {
		insight.Quotes = insight.Quotes[:maxQuotes]
	}
	if len(insight.Objections) > maxObjections {
		insight.Objections = insight.Objections[:maxObjections]
	}
	if len(insight.FeatureIdeas) > maxFeatureIdeas {
		insight.FeatureIdeas = insight.FeatureIdeas[:maxFeatureIdeas]
	}
	return insight, nil
}
