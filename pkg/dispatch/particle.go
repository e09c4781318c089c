package dispatch

// Op discriminates a Particle.
type Op string

const (
	OpText        Op = "text"
	OpIssue       Op = "issue"
	OpSet         Op = "set"
	OpParserClose Op = "parser-close"
)

// Particle is the smallest normalized unit of meaning parsed out of an
// upstream event.
type Particle struct {
	Op Op

	// Text is set for OpText.
	Text string

	// Symbol and Issue are set for OpIssue.
	Symbol string
	Issue  string

	// Value is set for OpSet.
	Value map[string]any
}

// Issue symbols shared by the dialects.
const (
	// SymbolWarning marks in-band vendor errors and abnormal stops.
	SymbolWarning = "⚠"

	// SymbolBlocked marks refusals and blocked prompts.
	SymbolBlocked = "🚫"
)

// TextParticle returns a text delta particle.
func TextParticle(text string) Particle {
	return Particle{Op: OpText, Text: text}
}

// IssueParticle returns a non-fatal issue annotation.
func IssueParticle(symbol, issue string) Particle {
	return Particle{Op: OpIssue, Symbol: symbol, Issue: issue}
}

// SetParticle returns a state patch particle.
func SetParticle(value map[string]any) Particle {
	return Particle{Op: OpSet, Value: value}
}

// CloseParticle signals that the parser has seen the vendor's end of message.
func CloseParticle() Particle {
	return Particle{Op: OpParserClose}
}
