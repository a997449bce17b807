package circulation

import (
	"context"
	"fmt"
	"lms/pkg/models"
	"lms/pkg/store"
	"strings"
)

// DefaultStock is the number of copies a new book starts with when the
// caller does not say otherwise.
const DefaultStock = 1

type BookService struct {
	gw    *store.Gateway
	loans *LoanService
}

func (s *BookService) Add(ctx context.Context, title, author, category string, stock int) (*models.Book, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: book title is required", ErrInvalidInput)
	}
	if stock < 0 {
		return nil, fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	}
	return store.Insert(ctx, s.gw, &models.Book{Title: title, Author: author, Category: category, Stock: stock})
}

// UpdateStock overwrites the stock count. Keeping it consistent with active
// loans is up to the caller.
func (s *BookService) UpdateStock(ctx context.Context, id uint, stock int) (*models.Book, error) {
	if stock < 0 {
		return nil, fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	}
	unlock := s.loans.locks.Lock(id)
	defer unlock()

	updated, err := store.Update[models.Book](ctx, s.gw,
		store.Where().Eq(models.ColBookID, id),
		store.Fields{models.ColStock: stock})
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, fmt.Errorf("%w: book %d", ErrNotFound, id)
	}
	return &updated[0], nil
}

// Delete removes a book unless a copy is currently lent out.
func (s *BookService) Delete(ctx context.Context, id uint) ([]models.Book, error) {
	unlock := s.loans.locks.Lock(id)
	defer unlock()

	var deleted []models.Book
	err := s.gw.Transaction(ctx, func(tx *store.Gateway) error {
		active, err := s.loans.activeWhere(ctx, tx, store.Where().Eq(models.ColBookID, id))
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return fmt.Errorf("%w: book %d is currently borrowed", ErrBlocked, id)
		}

		deleted, err = store.Delete[models.Book](ctx, tx, store.Where().Eq(models.ColBookID, id))
		if err != nil {
			return err
		}
		if len(deleted) == 0 {
			return fmt.Errorf("%w: book %d", ErrNotFound, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *BookService) Get(ctx context.Context, id uint) (*models.Book, error) {
	book, err := store.First[models.Book](ctx, s.gw, store.Where().Eq(models.ColBookID, id))
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, fmt.Errorf("%w: book %d", ErrNotFound, id)
	}
	return book, nil
}

func (s *BookService) List(ctx context.Context) ([]models.Book, error) {
	return store.Select[models.Book](ctx, s.gw, store.Where())
}

// Search matches keyword against title, author or category, ignoring case.
// An empty keyword matches every book.
func (s *BookService) Search(ctx context.Context, keyword string) ([]models.Book, error) {
	return store.Select[models.Book](ctx, s.gw,
		store.Where().AnyILike(keyword, models.ColTitle, models.ColAuthor, models.ColCategory))
}
