package circulation

import (
	"context"
	"errors"
	"fmt"
	"lms/pkg/database"
	"lms/pkg/models"
	"lms/pkg/store"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// tickingClock advances one second on every call so consecutive
// timestamps are strictly ordered.
func tickingClock() func() time.Time {
	var n int64
	return func() time.Time {
		return baseTime.Add(time.Duration(atomic.AddInt64(&n, 1)) * time.Second)
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(database.SQLite(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	return db
}

func setupLibrary(t *testing.T) (*Library, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	return New(store.New(db, nil), WithClock(tickingClock())), db
}

func bookStock(t *testing.T, db *gorm.DB, id uint) int {
	t.Helper()
	var b models.Book
	require.NoError(t, db.First(&b, id).Error)
	return b.Stock
}

func countRecords(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.BorrowRecord{}).Count(&n).Error)
	return n
}

func TestDuneScenario(t *testing.T) {
	lib, db := setupLibrary(t)
	ctx := context.Background()

	m1, err := lib.Members.Add(ctx, "Alice", "alice@example.com")
	require.NoError(t, err)
	m2, err := lib.Members.Add(ctx, "Bob", "bob@example.com")
	require.NoError(t, err)
	book, err := lib.Books.Add(ctx, "Dune", "Herbert", "SciFi", 1)
	require.NoError(t, err)

	conf, err := lib.Loans.Borrow(ctx, m1.MemberID, book.BookID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("Book %d borrowed by member %d.", book.BookID, m1.MemberID), conf.Message)
	assert.Equal(t, 0, conf.Stock)
	assert.NotEmpty(t, conf.RecordUid)

	_, err = lib.Loans.Borrow(ctx, m2.MemberID, book.BookID)
	assert.ErrorIs(t, err, ErrOutOfStock)

	conf, err = lib.Loans.Return(ctx, m1.MemberID, book.BookID)
	require.NoError(t, err)
	assert.Equal(t, 1, conf.Stock)
	assert.NotNil(t, conf.ReturnDate)

	_, err = lib.Loans.Borrow(ctx, m2.MemberID, book.BookID)
	assert.NoError(t, err)
	assert.Equal(t, 0, bookStock(t, db, book.BookID))
}

func TestBorrowOutOfStockDoesNotMutate(t *testing.T) {
	lib, db := setupLibrary(t)
	ctx := context.Background()

	m, _ := lib.Members.Add(ctx, "Alice", "")
	book, _ := lib.Books.Add(ctx, "Empty Shelf", "Nobody", "Misc", 0)

	_, err := lib.Loans.Borrow(ctx, m.MemberID, book.BookID)
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, 0, bookStock(t, db, book.BookID))
	assert.Equal(t, int64(0), countRecords(t, db))
}

func TestBorrowNotFound(t *testing.T) {
	lib, db := setupLibrary(t)
	ctx := context.Background()

	m, _ := lib.Members.Add(ctx, "Alice", "")
	_, err := lib.Loans.Borrow(ctx, m.MemberID, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	book, _ := lib.Books.Add(ctx, "Dune", "Herbert", "SciFi", 2)
	_, err = lib.Loans.Borrow(ctx, 999, book.BookID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, bookStock(t, db, book.BookID))
	assert.Equal(t, int64(0), countRecords(t, db))
}

func TestBorrowSameBookTwiceIsBlocked(t *testing.T) {
	lib, db := setupLibrary(t)
	ctx := context.Background()

	m, _ := lib.Members.Add(ctx, "Alice", "")
	book, _ := lib.Books.Add(ctx, "Dune", "Herbert", "SciFi", 3)

	_, err := lib.Loans.Borrow(ctx, m.MemberID, book.BookID)
	require.NoError(t, err)
	_, err = lib.Loans.Borrow(ctx, m.MemberID, book.BookID)
	assert.ErrorIs(t, err, ErrAlreadyBorrowed)
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Equal(t, 2, bookStock(t, db, book.BookID))
	assert.Equal(t, int64(1), countRecords(t, db))
}

func TestReturnWithoutActiveLoan(t *testing.T) {
	lib, db := setupLibrary(t)
	ctx := context.Background()

	m, _ := lib.Members.Add(ctx, "Alice", "")
	book, _ := lib.Books.Add(ctx, "Dune", "Herbert", "SciFi", 1)

	_, err := lib.Loans.Return(ctx, m.MemberID, book.BookID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, bookStock(t, db, book.BookID))

	_, err = lib.Loans.Borrow(ctx, m.MemberID, book.BookID)
	require.NoError(t, err)
	_, err = lib.Loans.Return(ctx, m.MemberID, book.BookID)
	require.NoError(t, err)

	_, err = lib.Loans.Return(ctx, m.MemberID, book.BookID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, bookStock(t, db, book.BookID))
}

func TestBorrowReturnRestoresStock(t *testing.T) {
	lib, db := setupLibrary(t)
	ctx := context.Background()

	m, _ := lib.Members.Add(ctx, "Alice", "")
	book, _ := lib.Books.Add(ctx, "Dune", "Herbert", "SciFi", 4)

	_, err := lib.Loans.Borrow(ctx, m.MemberID, book.BookID)
	require.NoError(t, err)
	assert.Equal(t, 3, bookStock(t, db, book.BookID))

	_, err = lib.Loans.Return(ctx, m.MemberID, book.BookID)
	require.NoError(t, err)
	assert.Equal(t, 4, bookStock(t, db, book.BookID))

	var records []models.BorrowRecord
	require.NoError(t, db.Find(&records).Error)
	require.Len(t, records, 1)
	assert.NotNil(t, records[0].ReturnDate)
}

func TestReturnWithDuplicateActiveRecordsClosesFirst(t *testing.T) {
	lib, db := setupLibrary(t)
	ctx := context.Background()

	m, _ := lib.Members.Add(ctx, "Alice", "")
	book, _ := lib.Books.Add(ctx, "Dune", "Herbert", "SciFi", 0)
	for i := 0; i < 2; i++ {
		require.NoError(t, db.Create(&models.BorrowRecord{
			RecordUid:  fmt.Sprintf("dup-%d", i),
			MemberID:   m.MemberID,
			BookID:     book.BookID,
			BorrowDate: baseTime,
		}).Error)
	}

	conf, err := lib.Loans.Return(ctx, m.MemberID, book.BookID)
	require.NoError(t, err)
	assert.Equal(t, "dup-0", conf.RecordUid)

	active, err := lib.Loans.ActiveLoansByMember(ctx, m.MemberID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "dup-1", active[0].RecordUid)
	assert.Equal(t, 1, bookStock(t, db, book.BookID))
}

func TestConcurrentBorrowsNeverOversell(t *testing.T) {
	lib, db := setupLibrary(t)
	ctx := context.Background()

	book, _ := lib.Books.Add(ctx, "Dune", "Herbert", "SciFi", 3)
	members := make([]uint, 10)
	for i := range members {
		m, err := lib.Members.Add(ctx, fmt.Sprintf("member-%d", i), "")
		require.NoError(t, err)
		members[i] = m.MemberID
	}

	var wg sync.WaitGroup
	var ok, outOfStock int32
	for _, id := range members {
		wg.Add(1)
		go func(memberID uint) {
			defer wg.Done()
			_, err := lib.Loans.Borrow(ctx, memberID, book.BookID)
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case assert.ErrorIs(t, err, ErrOutOfStock):
				atomic.AddInt32(&outOfStock, 1)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int32(3), ok)
	assert.Equal(t, int32(7), outOfStock)
	assert.Equal(t, 0, bookStock(t, db, book.BookID))
	assert.Equal(t, int64(3), countRecords(t, db))
}

func TestDeleteMemberBlockedByActiveLoan(t *testing.T) {
	lib, _ := setupLibrary(t)
	ctx := context.Background()

	m, _ := lib.Members.Add(ctx, "Alice", "alice@example.com")
	book, _ := lib.Books.Add(ctx, "Dune", "Herbert", "SciFi", 1)
	_, err := lib.Loans.Borrow(ctx, m.MemberID, book.BookID)
	require.NoError(t, err)

	_, err = lib.Members.Delete(ctx, m.MemberID)
	assert.ErrorIs(t, err, ErrBlocked)
	details, err := lib.Members.Get(ctx, m.MemberID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", details.Member.Name)

	_, err = lib.Loans.Return(ctx, m.MemberID, book.BookID)
	require.NoError(t, err)

	deleted, err := lib.Members.Delete(ctx, m.MemberID)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, m.MemberID, deleted[0].MemberID)

	_, err = lib.Members.Get(ctx, m.MemberID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = lib.Members.Delete(ctx, m.MemberID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteBookBlockedByActiveLoan(t *testing.T) {
	lib, _ := setupLibrary(t)
	ctx := context.Background()

	m, _ := lib.Members.Add(ctx, "Alice", "")
	book, _ := lib.Books.Add(ctx, "Dune", "Herbert", "SciFi", 2)
	_, err := lib.Loans.Borrow(ctx, m.MemberID, book.BookID)
	require.NoError(t, err)

	_, err = lib.Books.Delete(ctx, book.BookID)
	assert.ErrorIs(t, err, ErrBlocked)
	got, err := lib.Books.Get(ctx, book.BookID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stock)

	_, err = lib.Loans.Return(ctx, m.MemberID, book.BookID)
	require.NoError(t, err)

	deleted, err := lib.Books.Delete(ctx, book.BookID)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "Dune", deleted[0].Title)
}

func TestUpdateMemberPartial(t *testing.T) {
	lib, _ := setupLibrary(t)
	ctx := context.Background()

	m, _ := lib.Members.Add(ctx, "Alice", "alice@example.com")

	email := "alice@library.org"
	empty := ""
	updated, err := lib.Members.Update(ctx, m.MemberID, MemberUpdate{Name: &empty, Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.Name)
	assert.Equal(t, email, updated.Email)

	same, err := lib.Members.Update(ctx, m.MemberID, MemberUpdate{})
	require.NoError(t, err)
	assert.Equal(t, "Alice", same.Name)
	assert.Equal(t, email, same.Email)

	name := "Bob"
	_, err = lib.Members.Update(ctx, 999, MemberUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddValidation(t *testing.T) {
	lib, _ := setupLibrary(t)
	ctx := context.Background()

	_, err := lib.Members.Add(ctx, "  ", "x@example.com")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = lib.Books.Add(ctx, "", "Herbert", "SciFi", 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = lib.Books.Add(ctx, "Dune", "Herbert", "SciFi", -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateBookStock(t *testing.T) {
	lib, _ := setupLibrary(t)
	ctx := context.Background()

	book, _ := lib.Books.Add(ctx, "Dune", "Herbert", "SciFi", 1)
	updated, err := lib.Books.UpdateStock(ctx, book.BookID, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, updated.Stock)

	_, err = lib.Books.UpdateStock(ctx, book.BookID, -2)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = lib.Books.UpdateStock(ctx, 999, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchBooks(t *testing.T) {
	lib, _ := setupLibrary(t)
	ctx := context.Background()

	lib.Books.Add(ctx, "Dune", "Frank Herbert", "SciFi", 1)
	lib.Books.Add(ctx, "Emma", "Jane Austen", "Classic", 1)
	lib.Books.Add(ctx, "100% Pure", "Anon", "Cooking", 1)
	lib.Books.Add(ctx, "Émile", "Jean-Jacques Rousseau", "Philosophy", 1)

	tests := []struct {
		name     string
		keyword  string
		expected []string
	}{
		{name: "title ignores case", keyword: "dUNe", expected: []string{"Dune"}},
		{name: "author substring", keyword: "austen", expected: []string{"Emma"}},
		{name: "category", keyword: "scifi", expected: []string{"Dune"}},
		{name: "matches any column", keyword: "e", expected: []string{"Dune", "Emma", "100% Pure", "Émile"}},
		{name: "accented title lower case keyword", keyword: "émile", expected: []string{"Émile"}},
		{name: "accented title upper case keyword", keyword: "ÉMILE", expected: []string{"Émile"}},
		{name: "wildcard is literal", keyword: "%", expected: []string{"100% Pure"}},
		{name: "no match", keyword: "tolkien", expected: nil},
		{name: "empty keyword matches all", keyword: "", expected: []string{"Dune", "Emma", "100% Pure", "Émile"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			books, err := lib.Books.Search(ctx, tt.keyword)
			require.NoError(t, err)
			var titles []string
			for _, b := range books {
				titles = append(titles, b.Title)
			}
			assert.Equal(t, tt.expected, titles)
		})
	}
}

func TestListBooks(t *testing.T) {
	lib, _ := setupLibrary(t)
	ctx := context.Background()

	books, err := lib.Books.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)

	lib.Books.Add(ctx, "Dune", "Herbert", "SciFi", 1)
	lib.Books.Add(ctx, "Emma", "Austen", "Classic", 2)
	books, err = lib.Books.List(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Dune", books[0].Title)
	assert.Equal(t, 2, books[1].Stock)
}

func TestGetMemberIncludesHistory(t *testing.T) {
	lib, _ := setupLibrary(t)
	ctx := context.Background()

	m, _ := lib.Members.Add(ctx, "Alice", "")
	b1, _ := lib.Books.Add(ctx, "Dune", "Herbert", "SciFi", 1)
	b2, _ := lib.Books.Add(ctx, "Emma", "Austen", "Classic", 1)
	_, err := lib.Loans.Borrow(ctx, m.MemberID, b1.BookID)
	require.NoError(t, err)
	_, err = lib.Loans.Return(ctx, m.MemberID, b1.BookID)
	require.NoError(t, err)
	_, err = lib.Loans.Borrow(ctx, m.MemberID, b2.BookID)
	require.NoError(t, err)

	details, err := lib.Members.Get(ctx, m.MemberID)
	require.NoError(t, err)
	require.Len(t, details.Loans, 2)
	assert.Equal(t, b1.BookID, details.Loans[0].BookID)
	assert.NotNil(t, details.Loans[0].ReturnDate)
	assert.Equal(t, b2.BookID, details.Loans[1].BookID)
	assert.Nil(t, details.Loans[1].ReturnDate)
}

func TestBorrowRollsBackStockWhenRecordInsertFails(t *testing.T) {
	db := setupTestDB(t)
	lib := New(store.New(db, nil), WithClock(tickingClock()),
		WithUidGenerator(func() string { return "same-receipt" }))
	ctx := context.Background()

	m, _ := lib.Members.Add(ctx, "Alice", "")
	first, _ := lib.Books.Add(ctx, "Dune", "Herbert", "SciFi", 1)
	second, _ := lib.Books.Add(ctx, "Emma", "Austen", "Classic", 1)

	_, err := lib.Loans.Borrow(ctx, m.MemberID, first.BookID)
	require.NoError(t, err)

	_, err = lib.Loans.Borrow(ctx, m.MemberID, second.BookID)
	require.Error(t, err)
	assert.True(t, IsStorageError(err))
	assert.Equal(t, 1, bookStock(t, db, second.BookID))
	assert.Equal(t, int64(1), countRecords(t, db))
}

func TestReturnRollsBackWhenStockIncrementFails(t *testing.T) {
	lib, db := setupLibrary(t)
	ctx := context.Background()

	m, _ := lib.Members.Add(ctx, "Alice", "")
	book, _ := lib.Books.Add(ctx, "Dune", "Herbert", "SciFi", 1)
	_, err := lib.Loans.Borrow(ctx, m.MemberID, book.BookID)
	require.NoError(t, err)

	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("fail_books_update", func(tx *gorm.DB) {
		if tx.Statement.Table == (models.Book{}).TableName() {
			tx.AddError(errors.New("disk I/O error"))
		}
	}))

	_, err = lib.Loans.Return(ctx, m.MemberID, book.BookID)
	require.Error(t, err)
	assert.True(t, IsStorageError(err))
	assert.Equal(t, "disk I/O error", err.Error())
	assert.Equal(t, 0, bookStock(t, db, book.BookID))

	active, err := lib.Loans.ActiveLoansByBook(ctx, book.BookID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestReturnOfMissingBookRollsBack(t *testing.T) {
	lib, db := setupLibrary(t)
	ctx := context.Background()

	m, _ := lib.Members.Add(ctx, "Alice", "")
	book, _ := lib.Books.Add(ctx, "Dune", "Herbert", "SciFi", 1)
	_, err := lib.Loans.Borrow(ctx, m.MemberID, book.BookID)
	require.NoError(t, err)
	require.NoError(t, db.Delete(&models.Book{}, book.BookID).Error)

	_, err = lib.Loans.Return(ctx, m.MemberID, book.BookID)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	active, err := lib.Loans.ActiveLoansByBook(ctx, book.BookID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
