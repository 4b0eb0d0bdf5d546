package payment

// authorizeRequest is the wire request sent to the terminal gateway
type authorizeRequest struct {
	TerminalID string `json:"terminal_id"`
	RequestID  string `json:"request_id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Method     string `json:"method"`
}

// authorizeResponse is the wire response from the terminal gateway
type authorizeResponse struct {
	Approved  bool   `json:"approved"`
	Reference string `json:"reference"`
	Message   string `json:"message"`
}
