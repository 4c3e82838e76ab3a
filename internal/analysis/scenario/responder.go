package scenario

import "strings"

// Scenario numbers scripted role-play prompts.
type Scenario int

const (
	Party   Scenario = 1
	Concert Scenario = 2
	Date    Scenario = 3
)

// category pairs a keyword set with the canned feedback returned on a hit.
type category struct {
	Label    string
	Keywords []string
	Feedback string
}

type script struct {
	Categories []category
	Hint       string
}

// Categories are checked in order; the first keyword hit wins.
var scripts = map[Scenario]script{
	Party: {
		Categories: []category{
			{
				Label:    "not drinking",
				Keywords: []string{"not drinking", "don't drink", "i'm good", "no thanks", "i don't drink"},
				Feedback: "Nice. That's clear, confident, and respectful. Most people won't push further after that kind of response.",
			},
			{
				Label:    "driving",
				Keywords: []string{"drive", "driving", "driver", "car", "dd", "designated driver"},
				Feedback: "Smart move—safety is always a good reason. Giving a specific, practical excuse helps take the pressure off.",
			},
			{
				Label:    "maybe later",
				Keywords: []string{"maybe later", "later", "not now", "not right now"},
				Feedback: "That's okay too—sometimes deflecting helps avoid confrontation. But sometimes it might invite more pressure later.",
			},
			{
				Label:    "alternative",
				Keywords: []string{"soda", "water", "juice", "something else", "non-alcoholic", "soft drink"},
				Feedback: "Offering an alternative is a smooth strategy. People usually move on if you're holding a drink—even if it's not alcohol.",
			},
		},
		Hint: "That's one way to respond, but let me give you a hint for a better answer. Try being more direct and confident. You could say something like 'No thanks, I'm not drinking tonight' or give a specific reason like 'I'm driving later.' Having a clear, firm response ready helps you handle peer pressure more effectively.",
	},
	Concert: {
		Categories: []category{
			{
				Label:    "pass tonight",
				Keywords: []string{"pass tonight", "want to remember", "remember the concert", "not tonight"},
				Feedback: "That's a powerful reason. Framing your choice positively shows you value the experience.",
			},
			{
				Label:    "meet there",
				Keywords: []string{"meet you there", "i'll meet", "see you there", "skip pre-gaming", "skipping"},
				Feedback: "That's a solid boundary—joining later helps avoid early pressure.",
			},
			{
				Label:    "food instead",
				Keywords: []string{"get food", "food before", "eat instead", "grab food", "dinner"},
				Feedback: "Offering an alternative is a great strategy. Redirecting plans can shift the tone without causing conflict.",
			},
			{
				Label:    "might come",
				Keywords: []string{"might come", "come by", "but not drink", "won't drink"},
				Feedback: "This keeps your options open, but some people might keep pushing.",
			},
		},
		Hint: "That's one approach, but here's a hint for a better answer: Try suggesting an alternative activity or being clear about your boundaries. You could say 'I'll pass on pre-gaming but meet you at the concert' or 'Let's grab food before instead.' This shows you want to hang out but on your terms.",
	},
	Date: {
		Categories: []category{
			{
				Label:    "not drinking",
				Keywords: []string{"not drinking tonight", "don't drink", "still having a great time", "having fun", "great time"},
				Feedback: "That's perfect—you're holding your boundary while keeping things positive.",
			},
			{
				Label:    "water",
				Keywords: []string{"water", "just water", "have water", "water for now"},
				Feedback: "Simple and smooth. Sometimes people don't even notice.",
			},
			{
				Label:    "cheers",
				Keywords: []string{"don't really drink", "cheers to you", "don't drink much", "cheers"},
				Feedback: "Acknowledging them while making your choice clear is a great move.",
			},
			{
				Label:    "dessert",
				Keywords: []string{"dessert", "split a dessert", "want to split", "food", "something else"},
				Feedback: "Redirection with charm! Offering something else keeps the vibe friendly and light.",
			},
		},
		Hint: "That's one way to handle it, but here's a hint for a better answer: Try being clear about your choice while keeping the mood positive. You could say 'I'm not drinking tonight, but I'm having a great time' or suggest an alternative like 'Want to split a dessert instead?' This shows you're engaged in the date while maintaining your boundaries.",
	},
}

func known(n int) bool {
	_, ok := scripts[Scenario(n)]
	return ok
}

// Respond returns the canned feedback for the first category whose keywords
// appear in message (case-insensitive), or the scenario's hint when none do.
// ok is false for unknown scenarios.
func Respond(n int, message string) (reply string, ok bool) {
	if !known(n) {
		return "", false
	}

	normalized := strings.ToLower(message)
	for _, c := range scripts[Scenario(n)].Categories {
		for _, word := range c.Keywords {
			if strings.Contains(normalized, word) {
				return c.Feedback, true
			}
		}
	}
	return hint(n), true
}

func hint(n int) string {
	return scripts[Scenario(n)].Hint
}
