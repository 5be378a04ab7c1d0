package reply

// Rand is the random source used to pick one of a category's responses.
// *math/rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

// Category is a named group of trigger patterns and candidate replies.
type Category struct {
	Name      string   `json:"name"`
	Patterns  []string `json:"patterns"`
	Responses []string `json:"responses"`
}

// DefaultCategory is the name reported by Match when nothing matched.
const DefaultCategory = "default"
