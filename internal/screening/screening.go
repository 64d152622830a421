// Package screening scores PHQ-9 and GAD-7 self-report questionnaires.
package screening

import (
	"errors"
	"fmt"

	"github.com/MattCruikshank/mindcare/internal/models"
)

var (
	// ErrUnknownType is returned for an instrument that has no feedback table.
	ErrUnknownType = errors.New("unknown screening type")
	// ErrInvalidAnswers is returned when answers are missing or out of range.
	ErrInvalidAnswers = errors.New("invalid answers")
)

// MaxAnswer is the highest score of a single item ("Nearly every day").
const MaxAnswer = 3

// BookingThreshold is the total at and above which a counselor session is suggested.
const BookingThreshold = 10

// BookingPrompt is offered after feedback when the total reaches BookingThreshold.
const BookingPrompt = "Would you like me to help you book a session or explore coping strategies first?"

type band struct {
	min      int
	severity string
	feedback string
	followUp string
}

// Bands are ordered from the highest threshold down.
var tables = map[models.ScreeningType][]band{
	models.ScreeningPHQ9: {
		{15, "severe",
			"Your responses suggest you may be experiencing significant symptoms of depression. It takes courage to look at this honestly, and you don't have to face it alone.",
			"I strongly encourage you to book a session with one of our licensed counselors. They can work with you on a plan that fits your situation."},
		{10, "moderate",
			"Your responses indicate moderate symptoms that are worth addressing. Many students go through periods like this, and support really does help.",
			"Consider speaking with one of our counselors. In the meantime, our resource library has guides on mood and self-care."},
		{5, "mild",
			"Your responses suggest mild symptoms that are quite common, especially during demanding times.",
			"Continue practicing self-care and consider exploring our wellness resources. Check in with yourself again in a couple of weeks."},
		{0, "minimal",
			"Your responses suggest minimal symptoms, which is encouraging.",
			"Keep up the good self-care practices, and remember that support is here whenever you need it."},
	},
	models.ScreeningGAD7: {
		{15, "severe",
			"Your responses suggest you may be experiencing severe anxiety symptoms. That can be exhausting, and reaching out is a strong first step.",
			"I strongly recommend booking a session with one of our counselors, who can help you build a plan for managing anxiety."},
		{10, "moderate",
			"Your responses indicate moderate anxiety levels that are definitely worth addressing.",
			"Our counselors can help you develop personalized anxiety management techniques. Breathing and grounding exercises may also help right now."},
		{5, "mild",
			"Your responses suggest mild anxiety, which is quite normal and manageable.",
			"Try incorporating some of our stress management techniques into your daily routine."},
		{0, "minimal",
			"Your responses indicate minimal anxiety symptoms, which is great.",
			"Keep up whatever self-care practices you're currently using."},
	},
}

// Score totals the answers of a questionnaire with the given number of
// questions and looks up the matching feedback.
func Score(typ models.ScreeningType, questions int, answers []int) (*models.ScreeningResult, error) {
	bands, ok := tables[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	if len(answers) != questions {
		return nil, fmt.Errorf("%w: expected %d answers, got %d", ErrInvalidAnswers, questions, len(answers))
	}

	total := 0
	for i, a := range answers {
		if a < 0 || a > MaxAnswer {
			return nil, fmt.Errorf("%w: answer %d is %d", ErrInvalidAnswers, i+1, a)
		}
		total += a
	}

	for _, b := range bands {
		if total >= b.min {
			return &models.ScreeningResult{
				Type:           typ,
				Total:          total,
				Severity:       b.severity,
				Feedback:       b.feedback,
				FollowUp:       b.followUp,
				SuggestBooking: total >= BookingThreshold,
			}, nil
		}
	}
	// Unreachable: the last band starts at zero.
	return nil, fmt.Errorf("%w: total %d", ErrInvalidAnswers, total)
}
