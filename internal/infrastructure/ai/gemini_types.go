package ai

import "google.golang.org/genai"

// BatchRequest is one categorization call.
type BatchRequest struct {
	// ExportID is carried into usage accounting only
	ExportID          string
	SystemInstruction string
	Prompt            string
}

// Usage is the token accounting reported by the model.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// Completion is the raw JSON text returned for a batch.
type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// CategorizationSchema constrains the model output to
// {"results":[{"code":"...","catId":"..."}]}.
func CategorizationSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"results": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"code":  {Type: genai.TypeString},
						"catId": {Type: genai.TypeString},
					},
					Required: []string{"code", "catId"},
				},
			},
		},
		Required: []string{"results"},
	}
}

func usageFrom(md *genai.GenerateContentResponseUsageMetadata) Usage {
	if md == nil {
		return Usage{}
	}
	return Usage{
		InputTokens:  int64(md.PromptTokenCount),
		OutputTokens: int64(md.CandidatesTokenCount),
		TotalTokens:  int64(md.TotalTokenCount),
	}
}
