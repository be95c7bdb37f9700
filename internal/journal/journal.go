// Package journal implements the append-only undo log. Records are grouped
// into transactions; the newest transaction can be popped for undo. The log
// is flushed synchronously on every mutation so that a crash never loses an
// acknowledged record.
package journal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hpungsan/tally/internal/atomicfile"
	"github.com/hpungsan/tally/internal/errors"
)

// RecordType distinguishes the kinds of reversible actions.
type RecordType string

const (
	// RecordInterval covers interval add/delete; payloads are the interval's
	// JSON form, with "" meaning absent.
	RecordInterval RecordType = "interval"

	// RecordConfig is reserved for configuration changes.
	RecordConfig RecordType = "config"
)

// Sentinel lines delimiting transaction groups in the log file.
const (
	txnStartLine = "txn start"
	txnEndLine   = "txn end"
)

// Record is one reversible action: what was there before, what is there now.
type Record struct {
	Type   RecordType `json:"type"`
	Before string     `json:"before"`
	After  string     `json:"after"`
}

// Transaction is a contiguous group of records undone as one unit.
type Transaction struct {
	Records []Record
}

// Journal is the undo log. A non-positive maxTransactions relaxes the bound:
// zero keeps every transaction, a negative value disables persistence
// entirely (the log lives in memory only).
type Journal struct {
	path            string
	maxTransactions int

	transactions []Transaction
	open         *Transaction
}

// Initialize loads the journal at path, parsing any existing log file and
// pruning it to maxTransactions.
func Initialize(path string, maxTransactions int) (*Journal, error) {
	j := &Journal{path: path, maxTransactions: maxTransactions}

	if !j.persistent() || !atomicfile.Exists(path) {
		return j, nil
	}

	data, err := atomicfile.Read(path)
	if err != nil {
		return nil, err
	}
	if err := j.parse(string(data)); err != nil {
		return nil, err
	}

	if j.prune() {
		if err := j.flush(); err != nil {
			return nil, err
		}
	}
	return j, nil
}

func (j *Journal) persistent() bool {
	return j.maxTransactions >= 0
}

// parse rebuilds the in-memory log from file content. A trailing group with
// no end sentinel is accepted: it is the residue of a crash mid-transaction.
func (j *Journal) parse(content string) error {
	var current *Transaction

	for n, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue

		case line == txnStartLine:
			if current != nil {
				return errors.NewInvalidFile(j.path, fmt.Sprintf("line %d: transaction start inside open transaction", n+1))
			}
			current = &Transaction{}

		case line == txnEndLine:
			if current == nil {
				return errors.NewInvalidFile(j.path, fmt.Sprintf("line %d: transaction end without start", n+1))
			}
			j.transactions = append(j.transactions, *current)
			current = nil

		default:
			var rec Record
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				return errors.NewInvalidFile(j.path, fmt.Sprintf("line %d: %s", n+1, err.Error()))
			}
			if current == nil {
				return errors.NewInvalidFile(j.path, fmt.Sprintf("line %d: record outside transaction", n+1))
			}
			current.Records = append(current.Records, rec)
		}
	}

	if current != nil && len(current.Records) > 0 {
		j.transactions = append(j.transactions, *current)
	}
	return nil
}

// prune drops transactions from the oldest end until the bound holds.
// Reports whether anything was dropped.
func (j *Journal) prune() bool {
	if j.maxTransactions <= 0 || len(j.transactions) <= j.maxTransactions {
		return false
	}
	j.transactions = j.transactions[len(j.transactions)-j.maxTransactions:]
	return true
}

// flush rewrites the log file through the atomic writer.
func (j *Journal) flush() error {
	if !j.persistent() {
		return nil
	}

	var b strings.Builder
	writeTxn := func(t *Transaction) {
		b.WriteString(txnStartLine)
		b.WriteByte('\n')
		for _, rec := range t.Records {
			line, _ := json.Marshal(rec)
			b.Write(line)
			b.WriteByte('\n')
		}
		b.WriteString(txnEndLine)
		b.WriteByte('\n')
	}

	for i := range j.transactions {
		writeTxn(&j.transactions[i])
	}
	if j.open != nil && len(j.open.Records) > 0 {
		// The open transaction is persisted without its end sentinel so a
		// crash mid-transaction leaves its records recoverable.
		b.WriteString(txnStartLine)
		b.WriteByte('\n')
		for _, rec := range j.open.Records {
			line, _ := json.Marshal(rec)
			b.Write(line)
			b.WriteByte('\n')
		}
	}

	if err := atomicfile.WriteString(j.path, b.String()); err != nil {
		return errors.NewJournalFull("undo journal write failed: " + err.Error())
	}
	return nil
}

// StartTransaction opens an explicit transaction. Nesting is flat; starting
// inside an open transaction is an error.
func (j *Journal) StartTransaction() error {
	if j.open != nil {
		return errors.NewInvariant("journal transaction already open")
	}
	j.open = &Transaction{}
	return nil
}

// EndTransaction closes the open transaction and flushes the log.
func (j *Journal) EndTransaction() error {
	if j.open == nil {
		return errors.NewInvariant("no journal transaction open")
	}

	if len(j.open.Records) > 0 {
		j.transactions = append(j.transactions, *j.open)
	}
	j.open = nil
	j.prune()
	return j.flush()
}

// InTransaction reports whether an explicit transaction is open.
func (j *Journal) InTransaction() bool {
	return j.open != nil
}

// RecordIntervalAction appends one interval record. Outside an explicit
// transaction the record forms a single-record transaction of its own.
func (j *Journal) RecordIntervalAction(before, after string) error {
	rec := Record{Type: RecordInterval, Before: before, After: after}

	if j.open != nil {
		j.open.Records = append(j.open.Records, rec)
		return j.flush()
	}

	j.transactions = append(j.transactions, Transaction{Records: []Record{rec}})
	j.prune()
	return j.flush()
}

// Undo pops the newest transaction and returns its records in reverse
// application order, ready for the caller to apply inverses. Undo during an
// open transaction is invalid. An empty journal returns no records.
func (j *Journal) Undo() ([]Record, error) {
	if j.open != nil {
		return nil, errors.NewInvariant("cannot undo inside an open transaction")
	}
	if len(j.transactions) == 0 {
		return nil, nil
	}

	last := j.transactions[len(j.transactions)-1]
	j.transactions = j.transactions[:len(j.transactions)-1]
	if err := j.flush(); err != nil {
		return nil, err
	}

	reversed := make([]Record, 0, len(last.Records))
	for i := len(last.Records) - 1; i >= 0; i-- {
		reversed = append(reversed, last.Records[i])
	}
	return reversed, nil
}

// Size returns the number of closed transactions currently retained.
func (j *Journal) Size() int {
	return len(j.transactions)
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}
