package circulation

import (
	"context"
	"fmt"
	"lms/pkg/models"
	"lms/pkg/store"
	"log"
	"time"
)

// Confirmation describes a completed borrow or return.
type Confirmation struct {
	RecordID   uint
	RecordUid  string
	MemberID   uint
	BookID     uint
	Title      string
	Stock      int
	BorrowDate time.Time
	ReturnDate *time.Time
	Message    string
}

// LoanService is the only component that changes stock and borrow records
// together. Borrow and return on the same book are serialized in process
// and run inside one database transaction each.
type LoanService struct {
	gw     *store.Gateway
	locks  *keyedLocks
	now    func() time.Time
	newUid func() string
}

// Borrow lends one copy of bookID to memberID.
func (s *LoanService) Borrow(ctx context.Context, memberID, bookID uint) (*Confirmation, error) {
	unlock := s.locks.Lock(bookID)
	defer unlock()

	var conf *Confirmation
	err := s.gw.Transaction(ctx, func(tx *store.Gateway) error {
		book, err := store.First[models.Book](ctx, tx, store.Where().Eq(models.ColBookID, bookID))
		if err != nil {
			return err
		}
		if book == nil {
			return fmt.Errorf("%w: book %d", ErrNotFound, bookID)
		}
		if book.Stock < 1 {
			return fmt.Errorf("%w: book %d", ErrOutOfStock, bookID)
		}

		member, err := store.First[models.Member](ctx, tx, store.Where().Eq(models.ColMemberID, memberID))
		if err != nil {
			return err
		}
		if member == nil {
			return fmt.Errorf("%w: member %d", ErrNotFound, memberID)
		}

		active, err := s.activeLoans(ctx, tx, memberID, bookID)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return fmt.Errorf("%w (member %d, book %d)", ErrAlreadyBorrowed, memberID, bookID)
		}

		updated, err := store.Update[models.Book](ctx, tx,
			store.Where().Eq(models.ColBookID, bookID).Gt(models.ColStock, 0),
			store.Fields{models.ColStock: store.Incr(-1)})
		if err != nil {
			return err
		}
		if len(updated) == 0 {
			return fmt.Errorf("%w: book %d", ErrOutOfStock, bookID)
		}

		rec := &models.BorrowRecord{
			RecordUid:  s.newUid(),
			MemberID:   memberID,
			BookID:     bookID,
			BorrowDate: s.now(),
		}
		if _, err := store.Insert(ctx, tx, rec); err != nil {
			return err
		}

		conf = confirmation(rec, &updated[0],
			fmt.Sprintf("Book %d borrowed by member %d.", bookID, memberID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conf, nil
}

// Return closes the active loan of bookID held by memberID and puts the
// copy back in stock.
func (s *LoanService) Return(ctx context.Context, memberID, bookID uint) (*Confirmation, error) {
	unlock := s.locks.Lock(bookID)
	defer unlock()

	var conf *Confirmation
	err := s.gw.Transaction(ctx, func(tx *store.Gateway) error {
		active, err := s.activeLoans(ctx, tx, memberID, bookID)
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return fmt.Errorf("%w: no active borrow record for member %d and book %d", ErrNotFound, memberID, bookID)
		}
		if len(active) > 1 {
			log.Printf("%v: %d active borrow records for member %d and book %d, returning record %d",
				ErrInvariantViolation, len(active), memberID, bookID, active[0].RecordID)
		}

		closed, err := store.Update[models.BorrowRecord](ctx, tx,
			store.Where().Eq(models.ColRecordID, active[0].RecordID).IsNull(models.ColReturnDate),
			store.Fields{models.ColReturnDate: s.now()})
		if err != nil {
			return err
		}
		if len(closed) == 0 {
			return fmt.Errorf("%w: no active borrow record for member %d and book %d", ErrNotFound, memberID, bookID)
		}

		books, err := store.Update[models.Book](ctx, tx,
			store.Where().Eq(models.ColBookID, bookID),
			store.Fields{models.ColStock: store.Incr(1)})
		if err != nil {
			return err
		}
		if len(books) == 0 {
			return fmt.Errorf("%w: book %d has an active loan but does not exist", ErrInvariantViolation, bookID)
		}

		conf = confirmation(&closed[0], &books[0],
			fmt.Sprintf("Book %d returned by member %d.", bookID, memberID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conf, nil
}

// ActiveLoansByMember lists loans of memberID that are not returned yet.
func (s *LoanService) ActiveLoansByMember(ctx context.Context, memberID uint) ([]models.BorrowRecord, error) {
	return s.activeWhere(ctx, s.gw, store.Where().Eq(models.ColMemberID, memberID))
}

// ActiveLoansByBook lists loans of bookID that are not returned yet.
func (s *LoanService) ActiveLoansByBook(ctx context.Context, bookID uint) ([]models.BorrowRecord, error) {
	return s.activeWhere(ctx, s.gw, store.Where().Eq(models.ColBookID, bookID))
}

func (s *LoanService) activeLoans(ctx context.Context, gw *store.Gateway, memberID, bookID uint) ([]models.BorrowRecord, error) {
	return s.activeWhere(ctx, gw, store.Where().Eq(models.ColMemberID, memberID).Eq(models.ColBookID, bookID))
}

func (s *LoanService) activeWhere(ctx context.Context, gw *store.Gateway, f store.Filter) ([]models.BorrowRecord, error) {
	return store.Select[models.BorrowRecord](ctx, gw, f.IsNull(models.ColReturnDate))
}

func confirmation(rec *models.BorrowRecord, book *models.Book, msg string) *Confirmation {
	return &Confirmation{
		RecordID:   rec.RecordID,
		RecordUid:  rec.RecordUid,
		MemberID:   rec.MemberID,
		BookID:     rec.BookID,
		Title:      book.Title,
		Stock:      book.Stock,
		BorrowDate: rec.BorrowDate,
		ReturnDate: rec.ReturnDate,
		Message:    msg,
	}
}
