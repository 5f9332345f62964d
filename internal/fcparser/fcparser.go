// Package fcparser streams the host agent's stdout through a line-oriented
// state machine and emits completed function calls. It never blocks on a
// full message: chunks arrive as they're read off the pty, lines are
// buffered until newline-terminated, and a trailing partial line is carried
// over to the next chunk.
package fcparser

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/ccjk/ctxrd/internal/tokens"
)

// State names a position in the function-call grammar.
type State int

const (
	StateIdle State = iota
	StateInFunctionCalls
	StateInInvoke
	StateInParameter
	StateWaitingResults
	StateInResults
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInFunctionCalls:
		return "IN_FUNCTION_CALLS"
	case StateInInvoke:
		return "IN_INVOKE"
	case StateInParameter:
		return "IN_PARAMETER"
	case StateWaitingResults:
		return "WAITING_RESULTS"
	case StateInResults:
		return "IN_RESULTS"
	default:
		return "UNKNOWN"
	}
}

// Status is the terminal outcome recorded on a completed FCCall.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// maxResultRunes bounds how much of a function result/argument value the
// parser retains. Longer values are truncated with a marker suffix.
const maxResultRunes = 8000

// maxParkedIncomplete bounds the WAITING_RESULTS park map; the oldest entry
// is evicted once a new </invoke> would exceed it.
const maxParkedIncomplete = 10

var (
	reInvokeOpen    = regexp.MustCompile(`^<invoke name="([^"]*)">$`)
	reParamInline   = regexp.MustCompile(`^<parameter name="([^"]*)">(.*)</parameter>$`)
	reParamOpen     = regexp.MustCompile(`^<parameter name="([^"]*)">(.*)$`)
	reSystemLine    = regexp.MustCompile(`^<system>(.*)</system>$`)
	reErrorLine     = regexp.MustCompile(`^<error>(.*)</error>$`)
)

const (
	tagFunctionCallsOpen  = "<function_calls>"
	tagFunctionCallsClose = "</function_calls>"
	tagInvokeClose        = "</invoke>"
	tagParameterClose     = "</parameter>"
	tagResultsOpen        = "<function_results>"
	tagResultsClose       = "</function_results>"
)

// FCCall is a fully parsed function invocation plus its result.
type FCCall struct {
	ID        string
	Name      string
	Args      map[string]string
	Result    string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Tokens    int
	Status    Status
	Error     string
	Summary   string
}

// partial is the in-flight call being assembled.
type partial struct {
	id          string
	name        string
	args        map[string]string
	startTime   time.Time
	curParamKey string
	curParamVal strings.Builder
	result      strings.Builder
	status      Status
	errMsg      string
}

// Parser is a single-producer streaming state machine. It is not safe for
// concurrent use by multiple goroutines; the caller (session manager) owns
// serialising chunks for a given session.
type Parser struct {
	state      State
	lineBuf    strings.Builder // trailing partial line carried across chunks
	current    *partial
	parkOrder  []string // insertion order of keys in parked, oldest first
	parked     map[string]*partial
	lastParkID string
}

// New returns a Parser ready to consume chunks starting in IDLE.
func New() *Parser {
	return &Parser{
		state:  StateIdle,
		parked: make(map[string]*partial),
	}
}

// State reports the parser's current position, mainly for tests and status
// reporting; callers should not branch on it.
func (p *Parser) State() State { return p.state }

// Parse consumes a chunk of raw bytes and returns every FCCall that reached
// </function_results> while processing it. Malformed input is never an
// error: unrecognised lines are discarded or treated inert depending on
// state.
func (p *Parser) Parse(chunk []byte) []FCCall {
	var completed []FCCall

	p.lineBuf.WriteString(string(chunk))
	buf := p.lineBuf.String()

	lines := strings.Split(buf, "\n")
	// The last element is either empty (buf ended in \n) or a partial line;
	// keep it for the next chunk.
	tail := lines[len(lines)-1]
	lines = lines[:len(lines)-1]

	p.lineBuf.Reset()
	p.lineBuf.WriteString(tail)

	for _, raw := range lines {
		if fc := p.processLine(raw); fc != nil {
			completed = append(completed, *fc)
		}
	}

	return completed
}

// Flush drains any residual buffered partial line through the state machine
// as if newline-terminated, returning any FCCall it completes. Use at
// stream end (EOF/process exit).
func (p *Parser) Flush() []FCCall {
	tail := p.lineBuf.String()
	p.lineBuf.Reset()
	if tail == "" {
		return nil
	}
	if fc := p.processLine(tail); fc != nil {
		return []FCCall{*fc}
	}
	return nil
}

// Reset returns the parser to IDLE and discards all buffered state,
// including parked incomplete calls.
func (p *Parser) Reset() {
	p.state = StateIdle
	p.lineBuf.Reset()
	p.current = nil
	p.parkOrder = nil
	p.parked = make(map[string]*partial)
	p.lastParkID = ""
}

func (p *Parser) processLine(raw string) *FCCall {
	line := strings.TrimSpace(raw)

	switch p.state {
	case StateIdle:
		if line == tagFunctionCallsOpen {
			p.state = StateInFunctionCalls
		}
		// any other line in IDLE is host-agent chatter; discard.

	case StateInFunctionCalls:
		if m := reInvokeOpen.FindStringSubmatch(line); m != nil {
			p.current = &partial{
				id:        newID(),
				name:      m[1],
				args:      make(map[string]string),
				startTime: now(),
			}
			p.state = StateInInvoke
		} else if line == tagFunctionCallsClose {
			p.state = StateIdle
		}

	case StateInInvoke:
		switch {
		case line == tagInvokeClose:
			return p.parkCurrent()
		case reParamInline.MatchString(line):
			m := reParamInline.FindStringSubmatch(line)
			p.current.args[m[1]] = m[2]
		case reParamOpen.MatchString(line):
			m := reParamOpen.FindStringSubmatch(line)
			p.current.curParamKey = m[1]
			p.current.curParamVal.Reset()
			p.current.curParamVal.WriteString(m[2])
			p.state = StateInParameter
		}
		// any other line inside IN_INVOKE is inert.

	case StateInParameter:
		if line == tagParameterClose {
			p.current.args[p.current.curParamKey] = truncateRunes(p.current.curParamVal.String(), maxResultRunes)
			p.current.curParamKey = ""
			p.current.curParamVal.Reset()
			p.state = StateInInvoke
		} else {
			if p.current.curParamVal.Len() > 0 {
				p.current.curParamVal.WriteByte('\n')
			}
			p.current.curParamVal.WriteString(raw)
		}

	case StateWaitingResults:
		switch {
		case line == tagResultsOpen:
			if restored := p.restoreLastParked(); restored != nil {
				p.current = restored
				p.state = StateInResults
			}
			// no parked call to restore: stay in WAITING_RESULTS, inert.
		case reInvokeOpen.MatchString(line):
			// Host agents may emit several <invoke> blocks back to back
			// before any <function_results> appears; each parks in turn.
			m := reInvokeOpen.FindStringSubmatch(line)
			p.current = &partial{
				id:        newID(),
				name:      m[1],
				args:      make(map[string]string),
				startTime: now(),
			}
			p.state = StateInInvoke
		}
		// any other line while waiting — including </function_calls>,
		// which closes before <function_results> arrives on the wire —
		// is inert.

	case StateInResults:
		switch {
		case line == tagResultsClose:
			return p.completeCurrent()
		case reSystemLine.MatchString(line):
			m := reSystemLine.FindStringSubmatch(line)
			appendResult(p.current, m[1])
		case reErrorLine.MatchString(line):
			m := reErrorLine.FindStringSubmatch(line)
			appendResult(p.current, "ERROR: "+m[1])
			p.current.status = StatusError
			p.current.errMsg = m[1]
		default:
			appendResult(p.current, raw)
		}
	}

	return nil
}

// parkCurrent moves p.current into the WAITING_RESULTS park map, evicting
// the oldest parked call if the map is already full. Never returns an
// FCCall — parking never completes one.
func (p *Parser) parkCurrent() *FCCall {
	cur := p.current
	p.current = nil
	p.state = StateWaitingResults

	if cur == nil {
		return nil
	}
	cur.status = StatusOK

	if len(p.parkOrder) >= maxParkedIncomplete {
		oldest := p.parkOrder[0]
		p.parkOrder = p.parkOrder[1:]
		delete(p.parked, oldest)
	}
	p.parked[cur.id] = cur
	p.parkOrder = append(p.parkOrder, cur.id)
	p.lastParkID = cur.id
	return nil
}

// restoreLastParked pulls the most recently parked call back out, per the
// "best effort, most recent wins" rule for interleaved invokes.
func (p *Parser) restoreLastParked() *partial {
	if p.lastParkID == "" {
		return nil
	}
	cur, ok := p.parked[p.lastParkID]
	if !ok {
		return nil
	}
	delete(p.parked, p.lastParkID)
	for i, id := range p.parkOrder {
		if id == p.lastParkID {
			p.parkOrder = append(p.parkOrder[:i], p.parkOrder[i+1:]...)
			break
		}
	}
	p.lastParkID = ""
	if len(p.parkOrder) > 0 {
		p.lastParkID = p.parkOrder[len(p.parkOrder)-1]
	}
	return cur
}

func (p *Parser) completeCurrent() *FCCall {
	cur := p.current
	p.current = nil
	p.state = StateIdle
	if cur == nil {
		return nil
	}

	end := now()
	result := truncateRunes(cur.result.String(), maxResultRunes)
	argsSerialised := serialiseArgs(cur.args)

	fc := FCCall{
		ID:        cur.id,
		Name:      cur.name,
		Args:      cur.args,
		Result:    result,
		StartTime: cur.startTime,
		EndTime:   end,
		Duration:  end.Sub(cur.startTime),
		Tokens:    tokens.Estimate(result) + tokens.Estimate(argsSerialised),
		Status:    cur.status,
		Error:     cur.errMsg,
	}
	if fc.Status == "" {
		fc.Status = StatusOK
	}
	return &fc
}

func appendResult(cur *partial, line string) {
	if cur == nil {
		return
	}
	if cur.result.Len() > 0 {
		cur.result.WriteByte('\n')
	}
	cur.result.WriteString(line)
}

func serialiseArgs(args map[string]string) string {
	var b strings.Builder
	for k, v := range args {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	return b.String()
}

func truncateRunes(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "...[truncated]"
}

func newID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// now is a var so tests can stub it without depending on wall-clock.
var now = time.Now
