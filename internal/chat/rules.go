package chat

import (
	"context"
	"strings"
)

// CrisisResponse is given whenever a message contains crisis language.
const CrisisResponse = "I'm very concerned about what you've shared. Your safety is the most important thing right now. " +
	"Please reach out immediately to one of these 24/7 helplines in India: Emergency Services: 112 or the " +
	"KIRAN Mental Health Helpline: 1800-599-0019. There are people who want to help you right now."

const disclaimer = "I'm a support assistant, not a doctor. If things feel serious, please consider booking a session with one of our counselors."

var crisisPhrases = []string{
	"suicide", "suicidal", "kill myself", "end my life", "want to die", "self-harm", "self harm",
	"hurt myself", "cut myself", "no reason to live", "better off dead",
}

type copingRule struct {
	strategy string
	keywords []string
	opener   string
}

// First match wins.
var copingRules = []copingRule{
	{"breathing", []string{"panic", "anxious", "anxiety", "nervous", "heart racing"},
		"That sounds really tough. Anxiety can feel overwhelming, and it makes sense that you're feeling this way."},
	{"grounding", []string{"overwhelmed", "spiral", "can't focus", "dissociat", "unreal"},
		"It sounds like a lot is hitting you at once. Let's slow things down together."},
	{"progressive_muscle", []string{"tense", "tension", "headache", "can't relax"},
		"Stress often shows up in the body too, and that's completely normal."},
	{"journaling", []string{"thoughts", "overthinking", "confused", "mind won't stop"},
		"It makes sense that your mind feels busy right now."},
	{"movement", []string{"stressed", "stress", "exam", "deadline", "restless"},
		"Academic pressure can be really heavy. You're not alone in feeling this."},
	{"mindfulness", []string{"sad", "down", "lonely", "tired", "sleep"},
		"Thank you for sharing that with me. Feeling this way is hard, and your feelings are valid."},
}

// RuleCompleter is a keyword-driven assistant that detects crisis language
// and suggests a coping strategy from the catalog.
type RuleCompleter struct {
	strategies map[string]string
}

// NewRuleCompleter creates a completer drawing on the given coping strategies.
func NewRuleCompleter(strategies map[string]string) *RuleCompleter {
	return &RuleCompleter{strategies: strategies}
}

// Complete implements Completer.
func (c *RuleCompleter) Complete(ctx context.Context, message string) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}
	lower := strings.ToLower(message)

	if IsCrisis(lower) {
		return Reply{Text: CrisisResponse, Crisis: true}, nil
	}

	for _, rule := range copingRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				if tip, ok := c.strategies[rule.strategy]; ok {
					return Reply{Text: rule.opener + " " + tip + " " + disclaimer}, nil
				}
				return Reply{Text: rule.opener + " " + disclaimer}, nil
			}
		}
	}

	return Reply{Text: "Thank you for sharing that with me. I'm here to listen. " +
		"Would you like to tell me a bit more about what's been on your mind? " +
		"You can also explore the Resource Hub for guides on stress, sleep and mindfulness."}, nil
}

// IsCrisis reports whether text contains crisis language.
func IsCrisis(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range crisisPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
