package compiler

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/mobility/pkg/domain"
)

var (
	ErrUnknownCommand = errors.New("unrecognized command")
	ErrFieldCount     = errors.New("move requires exactly 7 comma-separated fields")
	ErrMissingName    = errors.New("missing label name")
	ErrDuplicateLabel = errors.New("duplicate label")
	ErrUnresolvedGoto = errors.New("goto references an undefined label")
	ErrBadTime        = errors.New("unparsable time literal")
)

// moveFields is the arity of a move line.
const moveFields = 7

// ParseError identifies the offending line of a script.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v: %q", e.Line, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parser is responsible for converting script text into entries.
// It is stateless; one instance may be shared.
type Parser struct{}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{}
}

// Compile parses text and wraps the entries in an immutable Script.
// No partial script is ever returned.
func (p *Parser) Compile(id domain.UID, text string) (*domain.Script, error) {
	entries, err := p.Parse(text)
	if err != nil {
		return nil, err
	}
	return domain.NewScript(id, text, entries), nil
}

type pendingGoto struct {
	index int
	line  int
	text  string
}

// Parse compiles script text into entries with every goto resolved to a
// direct index.
func (p *Parser) Parse(text string) ([]domain.Entry, error) {
	var entries []domain.Entry
	labels := make(map[string]int)
	var pending []pendingGoto

	sc := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		keyword, rest := splitKeyword(line)
		fail := func(err error) error {
			return &ParseError{Line: lineNo, Text: line, Err: err}
		}

		switch keyword {
		case "label":
			if rest == "" {
				return nil, fail(ErrMissingName)
			}
			if _, dup := labels[rest]; dup {
				return nil, fail(fmt.Errorf("%w %q", ErrDuplicateLabel, rest))
			}
			labels[rest] = len(entries)
			entries = append(entries, domain.Entry{Kind: domain.EntryLabel, Label: rest, Line: lineNo})

		case "goto":
			if rest == "" {
				return nil, fail(ErrMissingName)
			}
			target, ok := labels[rest]
			if !ok {
				target = -1
				pending = append(pending, pendingGoto{index: len(entries), line: lineNo, text: line})
			}
			entries = append(entries, domain.Entry{Kind: domain.EntryGoto, Label: rest, Target: target, Line: lineNo})

		case "move":
			tmpl, err := parseMove(rest)
			if err != nil {
				return nil, fail(err)
			}
			entries = append(entries, domain.Entry{Kind: domain.EntryStep, Move: tmpl, Line: lineNo})

		default:
			return nil, fail(fmt.Errorf("%w %q", ErrUnknownCommand, keyword))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}

	for _, g := range pending {
		target, ok := labels[entries[g.index].Label]
		if !ok {
			return nil, &ParseError{Line: g.line, Text: g.text, Err: fmt.Errorf("%w %q", ErrUnresolvedGoto, entries[g.index].Label)}
		}
		entries[g.index].Target = target
	}

	return entries, nil
}

func splitKeyword(line string) (string, string) {
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i+1:])
}

// parseMove reads "actor, pause, timeout, mobile, origin, dest, forceRestart".
func parseMove(rest string) (domain.StepTemplate, error) {
	fields := strings.Split(rest, ",")
	if len(fields) != moveFields {
		return domain.StepTemplate{}, fmt.Errorf("%w, got %d", ErrFieldCount, len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	pauseAnchor, pause, err := ParseTimeLiteral(fields[1])
	if err != nil {
		return domain.StepTemplate{}, fmt.Errorf("pause: %w", err)
	}
	timeoutAnchor, timeout, err := ParseTimeLiteral(fields[2])
	if err != nil {
		return domain.StepTemplate{}, fmt.Errorf("timeout: %w", err)
	}

	return domain.StepTemplate{
		Actor:         domain.AgentID(fields[0]),
		Pause:         pause,
		PauseAnchor:   pauseAnchor,
		Timeout:       timeout,
		TimeoutAnchor: timeoutAnchor,
		MobileAgent:   domain.AgentID(fields[3]),
		Origin:        domain.NodeID(fields[4]),
		Destination:   domain.NodeID(fields[5]),
		ForceRestart:  fields[6] == "true",
	}, nil
}
