package imagegen

type TransformRequest struct {
	Image          string  `json:"image"` // base64
	Strength       float64 `json:"strength"`
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
}

type TransformResponse struct {
	Image          string  `json:"image"` // base64
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}
