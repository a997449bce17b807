package circulation

import (
	"context"
	"fmt"
	"lms/pkg/models"
	"lms/pkg/store"
	"log"
	"sort"
	"time"
)

const (
	DefaultTopLimit    = 5
	DefaultOverdueDays = 14
)

type ReportService struct {
	gw  *store.Gateway
	now func() time.Time
}

// BookCount is a book with the number of times it was ever borrowed.
type BookCount struct {
	models.Book
	BorrowCount int
}

// OverdueLoan is one active loan older than the threshold.
type OverdueLoan struct {
	MemberID   uint
	BookID     uint
	BorrowDate time.Time
}

// TopBorrowed ranks books by their number of borrow records, active and
// returned. Ties keep the order in which the books were first borrowed.
// Books deleted since are skipped.
func (s *ReportService) TopBorrowed(ctx context.Context, limit int) ([]BookCount, error) {
	if limit <= 0 {
		return []BookCount{}, nil
	}

	records, err := store.Select[models.BorrowRecord](ctx, s.gw, store.Where())
	if err != nil {
		return nil, err
	}

	counts := make(map[uint]int)
	var order []uint
	for _, r := range records {
		if _, seen := counts[r.BookID]; !seen {
			order = append(order, r.BookID)
		}
		counts[r.BookID]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > limit {
		order = order[:limit]
	}
	if len(order) == 0 {
		return []BookCount{}, nil
	}

	ids := make([]interface{}, len(order))
	for i, id := range order {
		ids[i] = id
	}
	books, err := store.Select[models.Book](ctx, s.gw, store.Where().In(models.ColBookID, ids...))
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Book, len(books))
	for _, b := range books {
		byID[b.BookID] = b
	}

	top := make([]BookCount, 0, len(order))
	for _, id := range order {
		book, ok := byID[id]
		if !ok {
			log.Printf("top borrowed: skipping book %d with %d borrow records, it no longer exists", id, counts[id])
			continue
		}
		top = append(top, BookCount{Book: book, BorrowCount: counts[id]})
	}
	return top, nil
}

// Overdue returns every active loan borrowed strictly before now minus
// days, one row per loan. A loan borrowed exactly at the cutoff is not
// overdue. days must not be negative.
func (s *ReportService) Overdue(ctx context.Context, days int) ([]OverdueLoan, error) {
	if days < 0 {
		return nil, fmt.Errorf("%w: overdue days must not be negative, got %d", ErrInvalidInput, days)
	}
	cutoff := s.now().AddDate(0, 0, -days)
	records, err := store.Select[models.BorrowRecord](ctx, s.gw,
		store.Where().IsNull(models.ColReturnDate).Lt(models.ColBorrowDate, cutoff))
	if err != nil {
		return nil, err
	}

	overdue := make([]OverdueLoan, len(records))
	for i, r := range records {
		overdue[i] = OverdueLoan{MemberID: r.MemberID, BookID: r.BookID, BorrowDate: r.BorrowDate}
	}
	return overdue, nil
}
