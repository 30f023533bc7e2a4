package storetest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jacentio/refguard/store"
)

// Op names an Adapter method.
type Op string

const (
	OpGet     Op = "get"
	OpInsert  Op = "insert"
	OpReplace Op = "replace"
	OpRemove  Op = "remove"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("storetest: injected fault")

// Call records one adapter call seen by Faulty.
type Call struct {
	Op  Op
	Key string
}

type rule struct {
	op    Op
	match func(string) bool
	err   error
	times int // <= 0 means forever
	skip  int // matching calls to let through first
}

// Faulty wraps an Adapter and fails selected calls. Calls that are not
// matched by a rule are forwarded to the wrapped adapter.
type Faulty struct {
	next store.Adapter

	mu    sync.Mutex
	rules []*rule
	calls []Call
}

// NewFaulty wraps next.
func NewFaulty(next store.Adapter) *Faulty {
	return &Faulty{next: next}
}

// Key matches exactly one key.
func Key(k string) func(string) bool {
	return func(s string) bool { return s == k }
}

// Prefix matches keys starting with p.
func Prefix(p string) func(string) bool {
	return func(s string) bool { return strings.HasPrefix(s, p) }
}

// AnyKey matches every key.
func AnyKey(string) bool { return true }

// Fail makes every op call whose key satisfies match return err.
// A nil err injects ErrInjected wrapped as transient.
func (f *Faulty) Fail(op Op, match func(string) bool, err error) {
	f.add(op, match, err, 0)
}

// FailOnce is like Fail but only for the next matching call.
func (f *Faulty) FailOnce(op Op, match func(string) bool, err error) {
	f.add(op, match, err, 1)
}

// FailAfter is like Fail but lets the first skip matching calls through.
func (f *Faulty) FailAfter(op Op, match func(string) bool, skip int, err error) {
	if err == nil {
		err = store.Transient(ErrInjected)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &rule{op: op, match: match, err: err, skip: skip})
}

// Heal removes all rules.
func (f *Faulty) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = nil
}

// Calls returns the calls seen so far, in order.
func (f *Faulty) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns the calls of one kind.
func (f *Faulty) CallsTo(op Op) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls forgets recorded calls.
func (f *Faulty) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *Faulty) add(op Op, match func(string) bool, err error, times int) {
	if err == nil {
		err = store.Transient(ErrInjected)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &rule{op: op, match: match, err: err, times: times})
}

func (f *Faulty) check(op Op, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Op: op, Key: key})
	for i, r := range f.rules {
		if r.op != op || !r.match(key) {
			continue
		}
		if r.skip > 0 {
			r.skip--
			continue
		}
		if r.times > 0 {
			r.times--
			if r.times == 0 {
				f.rules = append(f.rules[:i], f.rules[i+1:]...)
			}
		}
		return r.err
	}
	return nil
}

// Get implements store.Adapter.
func (f *Faulty) Get(ctx context.Context, key string) (store.Document, error) {
	if err := f.check(OpGet, key); err != nil {
		return store.Document{}, err
	}
	return f.next.Get(ctx, key)
}

// Insert implements store.Adapter.
func (f *Faulty) Insert(ctx context.Context, key string, value []byte) (store.Version, error) {
	if err := f.check(OpInsert, key); err != nil {
		return 0, err
	}
	return f.next.Insert(ctx, key, value)
}

// Replace implements store.Adapter.
func (f *Faulty) Replace(ctx context.Context, key string, value []byte, expected store.Version) (store.Version, error) {
	if err := f.check(OpReplace, key); err != nil {
		return 0, err
	}
	return f.next.Replace(ctx, key, value, expected)
}

// Remove implements store.Adapter.
func (f *Faulty) Remove(ctx context.Context, key string) error {
	if err := f.check(OpRemove, key); err != nil {
		return err
	}
	return f.next.Remove(ctx, key)
}

var _ store.Adapter = (*Faulty)(nil)
