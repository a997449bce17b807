package circulation

import (
	"context"
	"fmt"
	"lms/pkg/models"
	"lms/pkg/store"
	"strings"
	"time"
)

type MemberService struct {
	gw    *store.Gateway
	loans *LoanService
}

// MemberUpdate holds the optional fields of a partial update. Nil and
// empty values leave the column unchanged.
type MemberUpdate struct {
	Name  *string
	Email *string
}

// LoanSummary is one historical or active loan of a member.
type LoanSummary struct {
	BookID     uint
	BorrowDate time.Time
	ReturnDate *time.Time
}

type MemberDetails struct {
	Member models.Member
	Loans  []LoanSummary
}

// Add registers a member. Email uniqueness is left to the schema.
func (s *MemberService) Add(ctx context.Context, name, email string) (*models.Member, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: member name is required", ErrInvalidInput)
	}
	return store.Insert(ctx, s.gw, &models.Member{Name: name, Email: email})
}

// Update applies the non-empty fields of upd. With nothing to apply it
// returns the member unchanged.
func (s *MemberService) Update(ctx context.Context, id uint, upd MemberUpdate) (*models.Member, error) {
	fields := store.Fields{}
	if upd.Name != nil && *upd.Name != "" {
		fields[models.ColName] = *upd.Name
	}
	if upd.Email != nil && *upd.Email != "" {
		fields[models.ColEmail] = *upd.Email
	}

	updated, err := store.Update[models.Member](ctx, s.gw, store.Where().Eq(models.ColMemberID, id), fields)
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, fmt.Errorf("%w: member %d", ErrNotFound, id)
	}
	return &updated[0], nil
}

// Delete removes a member unless they still hold a book.
func (s *MemberService) Delete(ctx context.Context, id uint) ([]models.Member, error) {
	var deleted []models.Member
	err := s.gw.Transaction(ctx, func(tx *store.Gateway) error {
		active, err := s.loans.activeWhere(ctx, tx, store.Where().Eq(models.ColMemberID, id))
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return fmt.Errorf("%w: member %d has borrowed books", ErrBlocked, id)
		}

		deleted, err = store.Delete[models.Member](ctx, tx, store.Where().Eq(models.ColMemberID, id))
		if err != nil {
			return err
		}
		if len(deleted) == 0 {
			return fmt.Errorf("%w: member %d", ErrNotFound, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// Get returns the member with every loan they ever made.
func (s *MemberService) Get(ctx context.Context, id uint) (*MemberDetails, error) {
	member, err := store.First[models.Member](ctx, s.gw, store.Where().Eq(models.ColMemberID, id))
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, fmt.Errorf("%w: member %d", ErrNotFound, id)
	}

	records, err := store.Select[models.BorrowRecord](ctx, s.gw, store.Where().Eq(models.ColMemberID, id))
	if err != nil {
		return nil, err
	}
	loans := make([]LoanSummary, len(records))
	for i, r := range records {
		loans[i] = LoanSummary{BookID: r.BookID, BorrowDate: r.BorrowDate, ReturnDate: r.ReturnDate}
	}
	return &MemberDetails{Member: *member, Loans: loans}, nil
}
