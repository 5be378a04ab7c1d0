package chat

import (
	"strings"
	"time"
)

// TimestampLayout is the format of Processed.Timestamp (UTC, milliseconds).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

var questionWords = []string{"what", "when", "where", "who", "how", "why"}

// Processed is the normalized form of an incoming chat message.
type Processed struct {
	Processed  string `json:"processed"`
	IsQuestion bool   `json:"isQuestion"`
	Timestamp  string `json:"timestamp"`
}

var now = func() time.Time {
	return time.Now()
}

// Normalize collapses whitespace runs to one space, trims the ends and
// flags text that opens with an interrogative word. The check is a plain
// prefix test, so "however" is a question too.
func Normalize(raw string) Processed {
	text := strings.Join(strings.Fields(raw), " ")
	lower := strings.ToLower(text)

	isQuestion := false
	for _, w := range questionWords {
		if strings.HasPrefix(lower, w) {
			isQuestion = true
			break
		}
	}

	return Processed{
		Processed:  text,
		IsQuestion: isQuestion,
		Timestamp:  now().UTC().Format(TimestampLayout),
	}
}
