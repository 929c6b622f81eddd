package models

// Payload'ы событий внешних коллабораторов (прогноз, нарратив,
// институциональные потоки). Коллаборатор публикует данные по символу,
// пайплайн кэширует их и подшивает к проходящим сигналам.

// PredictionUpdate - свежий прогноз по символу
type PredictionUpdate struct {
	Symbol     string               `json:"symbol"`
	Prediction PredictionAnnotation `json:"prediction"`
}

// NarrativeUpdate - свежий нарратив по символу
type NarrativeUpdate struct {
	Symbol    string              `json:"symbol"`
	Narrative NarrativeAnnotation `json:"narrative"`
}

// InstitutionalUpdate - свежие данные о потоках по символу
type InstitutionalUpdate struct {
	Symbol        string                  `json:"symbol"`
	Institutional InstitutionalAnnotation `json:"institutional"`
}
