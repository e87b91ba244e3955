package keyspace

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dJournal/lib/journal"
)

var (
	ErrEmptyLine = errors.New("keyspace: empty command line")
	ErrSyntax    = errors.New("keyspace: syntax error")
)

// ParseLine converts a text command line into a journal entry for database db.
//
// Words are separated by white space, double quoted words may contain white space and
// Go escape sequences (e.g. "a b", "\x00"). The first word selects the entry:
//
//   - SELECT n: OpSelect for database n
//   - EXPIRE key...: OpExpired carrying DEL key...
//   - PING: OpPing
//   - MULTI: OpNoop, it only opens a transaction (see ParseScript)
//   - EXEC: OpExec
//   - everything else: OpCommand with the upper-cased word as command name
func ParseLine(line string, db journal.DbIndex) (journal.Entry, error) {
	words, err := splitLine(line)
	if err != nil {
		return journal.Entry{}, err
	}
	if len(words) == 0 {
		return journal.Entry{}, ErrEmptyLine
	}

	name := strings.ToUpper(words[0])
	args := make([][]byte, len(words)-1)
	for i, w := range words[1:] {
		args[i] = []byte(w)
	}

	switch name {
	case "SELECT":
		if len(words) != 2 {
			return journal.Entry{}, fmt.Errorf("%w: SELECT takes 1, got %d", ErrWrongArgs, len(args))
		}
		n, err := strconv.ParseUint(words[1], 10, 32)
		if err != nil {
			return journal.Entry{}, fmt.Errorf("%w: invalid database %q", ErrSyntax, words[1])
		}
		return journal.Entry{Op: journal.OpSelect, DbIndex: journal.DbIndex(n)}, nil
	case "EXPIRE":
		if len(args) == 0 {
			return journal.Entry{}, fmt.Errorf("%w: EXPIRE takes at least 1", ErrWrongArgs)
		}
		return journal.Entry{
			Op:      journal.OpExpired,
			DbIndex: db,
			Payload: &journal.Payload{Command: "DEL", Args: args},
		}, nil
	case "PING":
		return journal.Entry{Op: journal.OpPing, DbIndex: db}, nil
	case "MULTI":
		return journal.Entry{Op: journal.OpNoop, DbIndex: db}, nil
	case "EXEC":
		return journal.Entry{Op: journal.OpExec, DbIndex: db}, nil
	default:
		return journal.NewCommandEntry(db, name, args...), nil
	}
}

// ParseScript parses one command per line starting in database db. SELECT switches the
// database for the following lines, commands between MULTI and EXEC become
// OpMultiCommand entries. Blank lines and lines starting with # are skipped.
func ParseScript(script string, db journal.DbIndex) ([]journal.Entry, error) {
	var (
		entries []journal.Entry
		inTx    bool
		lineNo  int
	)

	sc := bufio.NewScanner(strings.NewReader(script))
	sc.Buffer(make([]byte, 0, 64*1024), int(journal.DefaultMaxStringLen))
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		e, err := ParseLine(line, db)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		switch {
		case e.Op == journal.OpSelect:
			db = e.DbIndex
		case e.Op == journal.OpNoop:
			if inTx {
				return nil, fmt.Errorf("line %d: %w: nested MULTI", lineNo, ErrSyntax)
			}
			inTx = true
			continue
		case e.Op == journal.OpExec:
			if !inTx {
				return nil, fmt.Errorf("line %d: %w: EXEC without MULTI", lineNo, ErrSyntax)
			}
			inTx = false
		case e.Op == journal.OpCommand && inTx:
			e.Op = journal.OpMultiCommand
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if inTx {
		return nil, fmt.Errorf("%w: MULTI without EXEC", ErrSyntax)
	}
	return entries, nil
}

// splitLine splits a command line into words, honoring double quotes
func splitLine(line string) ([]string, error) {
	var words []string
	for i := 0; i < len(line); {
		switch c := line[i]; {
		case c == ' ' || c == '\t':
			i++
		case c == '"':
			end := closingQuote(line, i+1)
			if end < 0 {
				return nil, fmt.Errorf("%w: unbalanced quotes", ErrSyntax)
			}
			w, err := strconv.Unquote(line[i : end+1])
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
			}
			words = append(words, w)
			i = end + 1
		default:
			start := i
			for i < len(line) && line[i] != ' ' && line[i] != '\t' {
				i++
			}
			words = append(words, line[start:i])
		}
	}
	return words, nil
}

// closingQuote returns the index of the quote that ends the word starting at i
func closingQuote(line string, i int) int {
	for ; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}
