package dto

type WebhookTestResponse struct {
	OK bool `json:"ok"`
}

// WebhookTestFailedResponse relays what the tenant endpoint answered.
type WebhookTestFailedResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
	Body   string `json:"body"`
}
