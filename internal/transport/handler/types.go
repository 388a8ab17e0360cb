package handler

type EnqueueResponse struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type SubmitVideoResponse struct {
	JobID string `json:"jobId"`
}

type ForwardResponse struct {
	Forwarded bool `json:"forwarded"` // false for a duplicate delivery
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
