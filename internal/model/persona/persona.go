package persona

// Persona captures a selectable response style exposed to the frontend.
type Persona struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Tone  string `json:"tone"`
	Style string `json:"-"` // system instruction sent to the model
}

// Seed provides the closed set of chatbot personas.
func Seed() []Persona {
	return []Persona{
		{
			ID:    "ai",
			Name:  "AI",
			Tone:  "informal, friendly, casual",
			Style: "Respond in an informal, friendly, and casual manner.",
		},
		{
			ID:    "student",
			Name:  "Student",
			Tone:  "inquisitive, energetic, slightly informal",
			Style: "Respond in an inquisitive, energetic, and slightly informal manner.",
		},
		{
			ID:    "doctor",
			Name:  "Doctor",
			Tone:  "formal, professional, knowledgeable",
			Style: "Respond in a formal, professional, and knowledgeable manner.",
		},
	}
}
