package models

import (
	"time"
)

const (
	ColMemberID   = "member_id"
	ColName       = "name"
	ColEmail      = "email"
	ColBookID     = "book_id"
	ColTitle      = "title"
	ColAuthor     = "author"
	ColCategory   = "category"
	ColStock      = "stock"
	ColRecordID   = "record_id"
	ColRecordUid  = "record_uid"
	ColBorrowDate = "borrow_date"
	ColReturnDate = "return_date"
)

type Member struct {
	MemberID  uint   `gorm:"primaryKey;column:member_id"`
	Name      string `gorm:"size:120;not null"`
	Email     string `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Member) TableName() string  { return "members" }
func (Member) PrimaryKey() string { return ColMemberID }
func (m Member) Key() uint        { return m.MemberID }

type Book struct {
	BookID    uint   `gorm:"primaryKey;column:book_id"`
	Title     string `gorm:"not null"`
	Author    string
	Category  string
	Stock     int `gorm:"not null;check:stock >= 0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Book) TableName() string  { return "books" }
func (Book) PrimaryKey() string { return ColBookID }
func (b Book) Key() uint        { return b.BookID }

// BorrowRecord is one loan. A nil ReturnDate marks it active. Member and
// book ids are plain columns without foreign keys so history survives a
// book being removed after all its copies came back.
type BorrowRecord struct {
	RecordID   uint       `gorm:"primaryKey;column:record_id"`
	RecordUid  string     `gorm:"type:uuid;uniqueIndex;not null"`
	MemberID   uint       `gorm:"not null;index"`
	BookID     uint       `gorm:"not null;index"`
	BorrowDate time.Time  `gorm:"not null;index"`
	ReturnDate *time.Time `gorm:"index"`
}

func (BorrowRecord) TableName() string  { return "borrow_records" }
func (BorrowRecord) PrimaryKey() string { return ColRecordID }
func (r BorrowRecord) Key() uint        { return r.RecordID }

// Active reports whether the loan has not been returned yet.
func (r BorrowRecord) Active() bool { return r.ReturnDate == nil }

// All lists every model for migration.
func All() []interface{} {
	return []interface{}{&Member{}, &Book{}, &BorrowRecord{}}
}
