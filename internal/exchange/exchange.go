// Package exchange converts cards to and from CSV and JSON files.
//
// Import rows are question,answer[,subject[,difficulty[,tags]]] after a
// header row, with tags separated by semicolons.
package exchange

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/studydeck/internal/domain"
)

// Format names a supported file format.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
)

// ParseFormat returns the Format named by s, defaulting to CSV when s is
// empty.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return CSV, nil
	case CSV, JSON:
		return f, nil
	}
	return "", fmt.Errorf("%w: unsupported format %q, use \"csv\" or \"json\"", domain.ErrInvalidInput, s)
}

var exportHeader = []string{"Question", "Answer", "Subject", "Difficulty", "Tags", "Next Review", "Reviews Count"}

// ReadCSV parses cards for userID. The first row is a header and is
// skipped. Rows with fewer than two fields or an empty question or answer
// are skipped; a missing subject becomes the default and an unknown
// difficulty becomes medium.
func ReadCSV(r io.Reader, userID string, now time.Time) ([]domain.Card, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var cards []domain.Card
	for line := 0; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
		}
		if line == 0 || len(record) < 2 {
			continue
		}

		card, ok := fromRecord(record, userID, now)
		if ok {
			cards = append(cards, card)
		}
	}
	return cards, nil
}

func fromRecord(record []string, userID string, now time.Time) (domain.Card, bool) {
	field := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	card := domain.NewCard(userID, now)
	card.Question = field(0)
	card.Answer = field(1)
	if card.Question == "" || card.Answer == "" {
		return domain.Card{}, false
	}

	card.Subject = field(2)
	if card.Subject == "" {
		card.Subject = domain.DefaultSubject
	}
	if d, ok := domain.ParseDifficulty(strings.ToLower(field(3))); ok {
		card.Difficulty = d
	}
	for _, tag := range strings.Split(field(4), ";") {
		if tag = strings.TrimSpace(tag); tag != "" {
			card.Tags = append(card.Tags, tag)
		}
	}
	return card, true
}

// WriteCSV writes cards in export order with a header row.
func WriteCSV(w io.Writer, cards []domain.Card) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, c := range exportOrder(cards) {
		err := cw.Write([]string{
			c.Question,
			c.Answer,
			c.Subject,
			string(c.Difficulty),
			strings.Join(c.Tags, ";"),
			c.NextReviewDate.UTC().Format(time.DateOnly),
			strconv.Itoa(len(c.Reviews)),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Record is the JSON export shape of a card.
type Record struct {
	Question       string            `json:"question"`
	Answer         string            `json:"answer"`
	Subject        string            `json:"subject"`
	Difficulty     domain.Difficulty `json:"difficulty"`
	Tags           []string          `json:"tags"`
	NextReviewDate time.Time         `json:"nextReviewDate"`
	ReviewsCount   int               `json:"reviewsCount"`
}

// WriteJSON writes cards in export order as a JSON array.
func WriteJSON(w io.Writer, cards []domain.Card) error {
	ordered := exportOrder(cards)
	records := make([]Record, len(ordered))
	for i, c := range ordered {
		tags := c.Tags
		if tags == nil {
			tags = []string{}
		}
		records[i] = Record{
			Question:       c.Question,
			Answer:         c.Answer,
			Subject:        c.Subject,
			Difficulty:     c.Difficulty,
			Tags:           tags,
			NextReviewDate: c.NextReviewDate.UTC(),
			ReviewsCount:   len(c.Reviews),
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// Write dispatches to WriteCSV or WriteJSON.
func Write(w io.Writer, f Format, cards []domain.Card) error {
	if f == JSON {
		return WriteJSON(w, cards)
	}
	return WriteCSV(w, cards)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == JSON {
		return "application/json"
	}
	return "text/csv"
}

// exportOrder sorts a copy by subject, difficulty and next review date.
func exportOrder(cards []domain.Card) []domain.Card {
	out := slices.Clone(cards)
	slices.SortStableFunc(out, func(a, b domain.Card) int {
		if c := strings.Compare(a.Subject, b.Subject); c != 0 {
			return c
		}
		if c := strings.Compare(string(a.Difficulty), string(b.Difficulty)); c != 0 {
			return c
		}
		return a.NextReviewDate.Compare(b.NextReviewDate)
	})
	return out
}
