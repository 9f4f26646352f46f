// Package models defines the classifier output wire contract.
package models

// ActionItemDraft is one action item as emitted by the classifier, before it
// is persisted with a tier-derived initial status.
type ActionItemDraft struct {
	Tier            Tier                   `json:"tier"`
	ActionType      ActionType             `json:"action_type"`
	Title           string                 `json:"title"`
	Description     string                 `json:"description"`
	RelatedEntity   string                 `json:"related_entity"`
	RelatedPeople   []string               `json:"related_people"`
	DeliveryPayload map[string]interface{} `json:"delivery_payload"`
}

// ClassifierOutput is the strict JSON contract the model must emit.
// Parsing rejects any missing required field or enum value outside its
// closed set; see the classify package.
type ClassifierOutput struct {
	Entity              string            `json:"entity"`
	Activity            Activity          `json:"activity"`
	ActionType          ActionType        `json:"action_type"`
	Confidence          ConfidenceScores  `json:"confidence"`
	Summary             string            `json:"summary"`
	People              []Person          `json:"people"`
	PropheticWords      []PropheticWord   `json:"prophetic_words"`
	HasPropheticContent bool              `json:"has_prophetic_content"`
	Discoveries         []Discovery       `json:"discoveries"`
	ActionItems         []ActionItemDraft `json:"action_items"`
	TitleSuggestion     string            `json:"title_suggestion"`
}
