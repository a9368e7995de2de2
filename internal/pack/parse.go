package pack

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Parse loads a topic package from an uploaded file. Files ending in
// .json carry the direct serialization of Set; anything else is treated
// as the "pretty" paragraph format. The package id is the file name
// without its extension.
func Parse(fileName, content string) (*Set, error) {
	if strings.HasSuffix(fileName, ".json") {
		return ParseJSON(strings.TrimSuffix(fileName, ".json"), content)
	}
	id := fileName
	if pos := strings.Index(id, "."); pos >= 0 {
		id = id[:pos]
	}
	return ParsePretty(id, content)
}

// ParseJSON decodes a Set and escapes its text fields.
func ParseJSON(id, content string) (*Set, error) {
	var set Set
	if err := json.Unmarshal([]byte(content), &set); err != nil {
		return nil, fmt.Errorf("parse package %s: %w", id, err)
	}
	set.Title = Escape(set.Title)
	set.Description = Escape(set.Description)
	for ti := range set.Topics {
		topic := &set.Topics[ti]
		topic.Name = Escape(topic.Name)
		for qi := range topic.Questions {
			q := topic.Questions[qi]
			topic.Questions[qi] = NewQuestion(q.Cost, q.Text, q.Answers, q.Comment)
		}
	}
	if set.ID == "" {
		set.ID = id
	}
	return &set, nil
}

// ParsePretty parses the plain-text format: paragraphs separated by a
// blank line; the first paragraph is skipped (header), then title, then
// description, then one paragraph per topic. A topic starts with
// "Тема <name>" and carries five questions "<cost>. <prompt>" each
// followed by "Ответ: <answer>", costs running 10 to 50.
func ParsePretty(id, content string) (*Set, error) {
	paragraphs := splitParagraphs(content)
	if len(paragraphs) < 3 {
		return nil, fmt.Errorf("parse package %s: not enough paragraphs", id)
	}
	title := strings.Join(paragraphs[1], "\n")
	description := strings.Join(paragraphs[2], "\n")
	var topics []Topic
	for _, paragraph := range paragraphs[3:] {
		name, ok := cutPart(&paragraph, "Тема ", "10. ")
		if !ok {
			continue
		}
		var questions []Question
		good := true
		for i := 1; i <= 5; i++ {
			question, ok := cutPart(&paragraph, fmt.Sprintf("%d. ", i*10), "Ответ: ")
			if !ok {
				good = false
				break
			}
			answer, ok := cutPart(&paragraph, "Ответ: ", fmt.Sprintf("%d. ", (i+1)*10))
			if !ok {
				good = false
				break
			}
			questions = append(questions, NewQuestion(i*10, question, []string{answer}, ""))
		}
		if good {
			topics = append(topics, Topic{Name: Escape(name), Questions: questions})
		}
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("parse package %s: no valid topics", id)
	}
	return &Set{
		ID:          id,
		Title:       Escape(title),
		Description: Escape(description),
		Topics:      topics,
	}, nil
}

// splitParagraphs splits on blank lines, tolerating both LF and CRLF.
func splitParagraphs(content string) [][]string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	var paragraphs [][]string
	var current []string
	for _, line := range lines {
		if line == "" {
			paragraphs = append(paragraphs, current)
			current = nil
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, current)
	}
	return paragraphs
}

// cutPart extracts the text between a line starting with from and the
// next line starting with to, consuming the scanned prefix of lines.
// Continuation lines are joined with newlines.
func cutPart(lines *[]string, from, to string) (string, bool) {
	var b strings.Builder
	on := false
	for i, line := range *lines {
		if on {
			if strings.HasPrefix(line, to) {
				*lines = (*lines)[i:]
				break
			}
			b.WriteString("\n")
			b.WriteString(line)
		} else if strings.HasPrefix(line, from) {
			on = true
			b.WriteString(line[len(from):])
		}
	}
	if !on {
		return "", false
	}
	return b.String(), true
}
