package models

// WebhookItem identifies one content item affected by a CMS change
type WebhookItem struct {
	ID       string `json:"id"`
	Codename string `json:"codename"`
	Language string `json:"language"`
	Type     string `json:"type"`
}

// WebhookMessage is the metadata block of a legacy webhook delivery
type WebhookMessage struct {
	ID               string `json:"id"`
	ProjectID        string `json:"project_id"`
	Type             string `json:"type"`
	Operation        string `json:"operation"`
	APIName          string `json:"api_name"`
	CreatedTimestamp string `json:"created_timestamp"`
}

// WebhookNotification is one entry of a v2 webhook delivery
type WebhookNotification struct {
	Data struct {
		System System `json:"system"`
	} `json:"data"`
	Message struct {
		Action        string `json:"action"`
		DeliverySlot  string `json:"delivery_slot"`
		EnvironmentID string `json:"environment_id"`
		ObjectType    string `json:"object_type"`
	} `json:"message"`
}

// WebhookPayload is the body of a CMS webhook delivery. Both the legacy
// format (data.items) and the v2 format (notifications) are accepted.
type WebhookPayload struct {
	Data struct {
		Items []WebhookItem `json:"items"`
	} `json:"data"`
	Message       *WebhookMessage       `json:"message,omitempty"`
	Notifications []WebhookNotification `json:"notifications,omitempty"`
}

// Codenames returns the affected codenames in delivery order, duplicates kept
func (p *WebhookPayload) Codenames() []string {
	var codenames []string
	for _, item := range p.Data.Items {
		if item.Codename != "" {
			codenames = append(codenames, item.Codename)
		}
	}
	for _, n := range p.Notifications {
		if n.Data.System.Codename != "" {
			codenames = append(codenames, n.Data.System.Codename)
		}
	}
	return codenames
}
