package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State         string `json:"state"`
	SessionCount  int    `json:"session_count"`
	ObserverCount int    `json:"observer_count"`
	ViewerCount   int    `json:"viewer_count"`
	ScoresOK      int64  `json:"scores_ok"`
	ScoresFailed  int64  `json:"scores_failed"`
}

// SessionResponse is one entry in GET /api/v1/sessions.
type SessionResponse struct {
	SessionKey  string `json:"session_key"`
	Query       string `json:"query"`
	ResultCount int    `json:"result_count"`
	Attached    bool   `json:"attached"`
	TouchedAt   string `json:"touched_at"` // RFC3339
}

// errorResponse is the JSON body returned for 4xx/5xx errors.
type errorResponse struct {
	Error string `json:"error"`
}
