package app

// controlRequest is the body of POST /api/control/{device}.
type controlRequest struct {
	Action      string `json:"action"`
	Brightness  any    `json:"brightness,omitempty"`
	TargetState string `json:"target_state,omitempty"`
	CommandID   string `json:"command_id,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error apiError `json:"error"`
}

type healthStatus struct {
	Status          string  `json:"status"`
	BusConnected    bool    `json:"bus_connected"`
	StoreOK         bool    `json:"store_ok"`
	Breaker         string  `json:"breaker,omitempty"`
	LastWriteErrorS float64 `json:"last_write_error_age_sec"`
}
