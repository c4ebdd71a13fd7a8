package models

// PredictRequest is the body of POST /predict.
type PredictRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// BatchPredictRequest is the body of POST /predict/batch.
type BatchPredictRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

// InferenceResult is the output for one input text.
type InferenceResult struct {
	Model     string    `json:"model"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
	Cached    bool      `json:"cached"`
	LatencyMs float64   `json:"latency_ms"`
}

// PredictResponse is returned by POST /predict.
type PredictResponse struct {
	Success bool             `json:"success"`
	Result  *InferenceResult `json:"result,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// BatchPredictResponse is returned by POST /predict/batch.
type BatchPredictResponse struct {
	Success bool              `json:"success"`
	Results []InferenceResult `json:"results,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// ErrorResponse is the generic error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
