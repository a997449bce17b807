// Package circulation implements the lending rules of the library: member
// and book lifecycle, borrow/return transactions and reports.
package circulation

import (
	"lms/pkg/store"
	"time"

	"github.com/google/uuid"
)

// Library bundles the four services over one storage gateway.
type Library struct {
	Members *MemberService
	Books   *BookService
	Loans   *LoanService
	Reports *ReportService
}

type options struct {
	now    func() time.Time
	newUid func() string
}

type Option func(*options)

// WithClock replaces the wall clock used for borrow, return and overdue
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithUidGenerator replaces the generator for borrow record receipts.
func WithUidGenerator(gen func() string) Option {
	return func(o *options) { o.newUid = gen }
}

func New(gw *store.Gateway, opts ...Option) *Library {
	o := options{
		now:    func() time.Time { return time.Now().UTC() },
		newUid: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(&o)
	}

	loans := &LoanService{gw: gw, locks: newKeyedLocks(), now: o.now, newUid: o.newUid}
	return &Library{
		Members: &MemberService{gw: gw, loans: loans},
		Books:   &BookService{gw: gw, loans: loans},
		Loans:   loans,
		Reports: &ReportService{gw: gw, now: o.now},
	}
}
