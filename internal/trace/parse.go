// Package trace parses allocation traces and replays them against a heap.
//
// A trace is a text file with one directive per line. Blank lines and lines starting with
// '#' are ignored. Handles name allocations so later directives can refer to them.
//
//	alloc   <handle> <size>
//	zalloc  <handle> <count> <elemSize>
//	realloc <handle> <size>
//	free    <handle>
//	write   <handle> <byte>
//	check   <handle> <byte> [count]
//	stats
//	dump
package trace

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

type Op int

const (
	OpAlloc Op = iota
	OpZeroAlloc
	OpRealloc
	OpFree
	OpWrite
	OpCheck
	OpStats
	OpDump
)

type opSyntax struct {
	name      string
	hasHandle bool
	minArgs   int
	maxArgs   int
}

var opSyntaxMapping = map[Op]opSyntax{
	OpAlloc:     {name: "alloc", hasHandle: true, minArgs: 1, maxArgs: 1},
	OpZeroAlloc: {name: "zalloc", hasHandle: true, minArgs: 2, maxArgs: 2},
	OpRealloc:   {name: "realloc", hasHandle: true, minArgs: 1, maxArgs: 1},
	OpFree:      {name: "free", hasHandle: true},
	OpWrite:     {name: "write", hasHandle: true, minArgs: 1, maxArgs: 1},
	OpCheck:     {name: "check", hasHandle: true, minArgs: 1, maxArgs: 2},
	OpStats:     {name: "stats"},
	OpDump:      {name: "dump"},
}

var opsByName = func() map[string]Op {
	ops := make(map[string]Op, len(opSyntaxMapping))
	for op, syntax := range opSyntaxMapping {
		ops[syntax.name] = op
	}
	return ops
}()

func (o Op) String() string {
	syntax, ok := opSyntaxMapping[o]
	if !ok {
		return "unknown"
	}
	return syntax.name
}

// Directive is a single parsed line of a trace
type Directive struct {
	Line   int
	Op     Op
	Handle string
	Args   []uint
}

// Parse reads every directive from r. The first malformed line stops parsing and is
// reported along with its line number.
func Parse(r io.Reader) ([]Directive, error) {
	var directives []Directive

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		directive, err := parseLine(line, strings.Fields(text))
		if err != nil {
			return nil, err
		}
		directives = append(directives, directive)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read trace")
	}

	return directives, nil
}

func parseLine(line int, fields []string) (Directive, error) {
	op, ok := opsByName[strings.ToLower(fields[0])]
	if !ok {
		return Directive{}, errors.Errorf("line %d: unknown directive %q", line, fields[0])
	}

	syntax := opSyntaxMapping[op]
	directive := Directive{Line: line, Op: op}
	fields = fields[1:]

	if syntax.hasHandle {
		if len(fields) == 0 {
			return Directive{}, errors.Errorf("line %d: %s requires a handle", line, syntax.name)
		}
		directive.Handle = fields[0]
		fields = fields[1:]
	}

	if len(fields) < syntax.minArgs || len(fields) > syntax.maxArgs {
		if syntax.minArgs == syntax.maxArgs {
			return Directive{}, errors.Errorf("line %d: %s takes %d arguments, got %d", line, syntax.name, syntax.minArgs, len(fields))
		}
		return Directive{}, errors.Errorf("line %d: %s takes %d to %d arguments, got %d", line, syntax.name, syntax.minArgs, syntax.maxArgs, len(fields))
	}

	for _, field := range fields {
		// base 0 accepts 0x prefixes, which reads better for byte values
		value, err := strconv.ParseUint(field, 0, strconv.IntSize)
		if err != nil {
			return Directive{}, errors.Wrapf(err, "line %d: invalid argument %q", line, field)
		}
		directive.Args = append(directive.Args, uint(value))
	}

	if op == OpWrite || op == OpCheck {
		if directive.Args[0] > 0xFF {
			return Directive{}, errors.Errorf("line %d: byte value %d is out of range", line, directive.Args[0])
		}
	}

	return directive, nil
}
