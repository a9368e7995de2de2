// Package pack holds topic packages: named topics of five graded
// questions, the answer-checking rules and the text rendering used by
// the game chat.
package pack

import (
	"fmt"
	"html"
	"strings"
	"unicode"
)

// Question is a single prompt with its accepted answers. Cost is one of
// 10, 20, 30, 40, 50. Text fields are stored HTML-escaped.
type Question struct {
	Cost    int      `json:"cost"`
	Text    string   `json:"question"`
	Answers []string `json:"answers"`
	Comment string   `json:"comment,omitempty"`
}

// Topic is a named group of five questions of ascending cost.
type Topic struct {
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

// Set is an immutable topic package.
type Set struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Topics      []Topic `json:"topics"`
}

// Escape HTML-escapes user-supplied text for the HTML parse mode.
func Escape(s string) string {
	return html.EscapeString(s)
}

// NewQuestion escapes all text fields. Packages are escaped once at
// upload; reads never re-escape.
func NewQuestion(cost int, text string, answers []string, comment string) Question {
	escaped := make([]string, len(answers))
	for i, a := range answers {
		escaped[i] = Escape(a)
	}
	return Question{
		Cost:    cost,
		Text:    Escape(text),
		Answers: escaped,
		Comment: Escape(comment),
	}
}

// CheckAnswer reports whether a typed answer matches one of the accepted
// answers. Both sides are normalized (lowercase, ё→е, non-alphanumerics
// dropped) in two variants each, keeping and dropping content inside
// (), [] and {}; any of the four cross-comparisons counts as a match.
func (q Question) CheckAnswer(given string) bool {
	given = strings.TrimSpace(given)
	givenKept := normalize(given, false)
	givenStripped := normalize(given, true)
	for _, expected := range q.Answers {
		expKept := normalize(expected, false)
		expStripped := normalize(expected, true)
		if givenKept == expKept || givenKept == expStripped ||
			givenStripped == expKept || givenStripped == expStripped {
			return true
		}
	}
	return false
}

// normalize lowercases, maps ё to е and drops everything that is not a
// letter or a digit. With stripBrackets set, content inside brackets is
// dropped as well.
func normalize(s string, stripBrackets bool) string {
	var b strings.Builder
	level := 0
	for _, c := range s {
		switch {
		case c == '(' || c == '[' || c == '{':
			level++
		case c == ')' || c == ']' || c == '}':
			level--
		case (level == 0 || !stripBrackets) && (unicode.IsLetter(c) || unicode.IsDigit(c)):
			if c == 'ё' || c == 'Ё' {
				b.WriteRune('е')
			} else {
				b.WriteString(strings.ToLower(string(c)))
			}
		}
	}
	return b.String()
}

// DisplayQuestion renders the question message for the play chat.
func (q Question) DisplayQuestion(topicName string) string {
	return fmt.Sprintf("<b>Тема</b> %s\n<b>%d.</b> %s", topicName, q.Cost, q.Text)
}

// DisplayAnswers renders the authoritative answer, alternates and the
// comment. The header differs after an accepted answer.
func (q Question) DisplayAnswers(afterRightAnswer bool) string {
	var b strings.Builder
	if afterRightAnswer {
		b.WriteString("<b>Авторский ответ</b>: ")
	} else {
		b.WriteString("<b>Ответ:</b> ")
	}
	for i, answer := range q.Answers {
		if i > 0 {
			b.WriteString("\n<b>Зачет</b>: ")
		}
		b.WriteString(answer)
	}
	if q.Comment != "" {
		b.WriteString("\n<b>Комментарий</b>: ")
		b.WriteString(q.Comment)
	}
	return b.String()
}

// TopicWord renders a topic count with the correct Russian plural form.
func TopicWord(topics int) string {
	switch {
	case topics%10 == 0 || topics%10 >= 5 || (topics%100 >= 10 && topics%100 < 20):
		return fmt.Sprintf("%d тем", topics)
	case topics%10 == 1:
		return fmt.Sprintf("%d тема", topics)
	default:
		return fmt.Sprintf("%d темы", topics)
	}
}
