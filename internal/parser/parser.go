// Package parser reads flashcards from markdown decks.
//
// A card starts at a "Q:" line. "A:" and "E:" open the answer and
// explanation ("C:" is accepted for explanation), and each of these may span
// several lines. "S:" sets the subject and "T:" a comma separated tag list,
// both on a single line. A "---" line ends the current card.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/studydeck/internal/domain"
)

type field int

const (
	none field = iota
	question
	answer
	explanation
)

const separator = "---"

var blockPrefixes = map[string]field{
	"Q:": question,
	"A:": answer,
	"E:": explanation,
	"C:": explanation,
}

// ParseFile reads the file at path and extracts its cards.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse extracts cards from r. Only content fields are set; scheduling
// state is left to the caller. Cards without a question are dropped.
func Parse(r io.Reader) ([]domain.Card, error) {
	p := &deckParser{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	p.finishCard()
	return p.cards, nil
}

type deckParser struct {
	cards   []domain.Card
	current domain.Card
	state   field
	block   []string
}

func (p *deckParser) line(line string) {
	if strings.TrimSpace(line) == separator {
		p.finishCard()
		return
	}

	if f, rest, ok := blockLine(line); ok {
		p.flushBlock()
		// A new question always starts a new card.
		if f == question && p.current.Question != "" {
			p.finishCard()
		}
		p.state = f
		p.block = append(p.block, rest)
		return
	}

	if rest, ok := cutPrefix(line, "S:"); ok {
		p.flushBlock()
		p.current.Subject = strings.TrimSpace(rest)
		return
	}
	if rest, ok := cutPrefix(line, "T:"); ok {
		p.flushBlock()
		p.current.Tags = splitTags(rest)
		return
	}

	if p.state != none {
		p.block = append(p.block, line)
	}
}

// flushBlock stores the lines gathered for the open field.
func (p *deckParser) flushBlock() {
	if p.state != none && len(p.block) > 0 {
		content := strings.TrimSpace(strings.Join(p.block, "\n"))
		switch p.state {
		case question:
			p.current.Question = content
		case answer:
			p.current.Answer = content
		case explanation:
			p.current.Explanation = content
		}
	}
	p.block = nil
	p.state = none
}

func (p *deckParser) finishCard() {
	p.flushBlock()
	if p.current.Question != "" {
		p.cards = append(p.cards, p.current)
	}
	p.current = domain.Card{}
}

func blockLine(line string) (field, string, bool) {
	for prefix, f := range blockPrefixes {
		if rest, ok := cutPrefix(line, prefix); ok {
			return f, rest, true
		}
	}
	return none, "", false
}

// cutPrefix strips prefix and at most one following space.
func cutPrefix(line, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(line, prefix)
	if !ok {
		return "", false
	}
	return strings.TrimPrefix(rest, " "), true
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
