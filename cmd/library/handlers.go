package main

import (
	"errors"
	"lms/pkg/circulation"
	"lms/pkg/database"
	"lms/pkg/models"
	"lms/pkg/store"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type server struct {
	lib *circulation.Library
	db  *gorm.DB
}

func (s *server) router() *gin.Engine {
	r := gin.Default()

	r.POST("/api/v1/members", s.addMember)
	r.GET("/api/v1/members/:memberId", s.getMember)
	r.PATCH("/api/v1/members/:memberId", s.updateMember)
	r.DELETE("/api/v1/members/:memberId", s.deleteMember)

	r.POST("/api/v1/books", s.addBook)
	r.GET("/api/v1/books", s.listBooks)
	r.PUT("/api/v1/books/:bookId/stock", s.updateBookStock)
	r.DELETE("/api/v1/books/:bookId", s.deleteBook)

	r.POST("/api/v1/loans/borrow", s.borrowBook)
	r.POST("/api/v1/loans/return", s.returnBook)

	r.GET("/api/v1/reports/top-borrowed", s.topBorrowed)
	r.GET("/api/v1/reports/overdue", s.overdue)

	r.GET("/manage/health", s.healthCheck)
	return r
}

func (s *server) addMember(c *gin.Context) {
	var request struct {
		Name  string `json:"name" binding:"required"`
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	member, err := s.lib.Members.Add(c.Request.Context(), request.Name, request.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, memberJSON(member))
}

func (s *server) getMember(c *gin.Context) {
	id, ok := pathID(c, "memberId")
	if !ok {
		return
	}

	details, err := s.lib.Members.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	loans := make([]gin.H, len(details.Loans))
	for i, l := range details.Loans {
		loans[i] = gin.H{
			"bookId":     l.BookID,
			"borrowDate": l.BorrowDate.Format(time.RFC3339),
			"returnDate": formatOptional(l.ReturnDate),
		}
	}
	body := memberJSON(&details.Member)
	body["loans"] = loans
	c.JSON(http.StatusOK, body)
}

func (s *server) updateMember(c *gin.Context) {
	id, ok := pathID(c, "memberId")
	if !ok {
		return
	}
	var request struct {
		Name  *string `json:"name"`
		Email *string `json:"email"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	member, err := s.lib.Members.Update(c.Request.Context(), id,
		circulation.MemberUpdate{Name: request.Name, Email: request.Email})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, memberJSON(member))
}

func (s *server) deleteMember(c *gin.Context) {
	id, ok := pathID(c, "memberId")
	if !ok {
		return
	}

	deleted, err := s.lib.Members.Delete(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]gin.H, len(deleted))
	for i := range deleted {
		items[i] = memberJSON(&deleted[i])
	}
	c.JSON(http.StatusOK, gin.H{"deleted": items})
}

func (s *server) addBook(c *gin.Context) {
	var request struct {
		Title    string `json:"title" binding:"required"`
		Author   string `json:"author"`
		Category string `json:"category"`
		Stock    *int   `json:"stock"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	stock := circulation.DefaultStock
	if request.Stock != nil {
		stock = *request.Stock
	}

	book, err := s.lib.Books.Add(c.Request.Context(), request.Title, request.Author, request.Category, stock)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bookJSON(book))
}

// listBooks lists every book, or searches when a q parameter is present.
func (s *server) listBooks(c *gin.Context) {
	var (
		books []models.Book
		err   error
	)
	if q, ok := c.GetQuery("q"); ok {
		books, err = s.lib.Books.Search(c.Request.Context(), q)
	} else {
		books, err = s.lib.Books.List(c.Request.Context())
	}
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]gin.H, len(books))
	for i := range books {
		items[i] = bookJSON(&books[i])
	}
	c.JSON(http.StatusOK, gin.H{"totalElements": len(items), "items": items})
}

func (s *server) updateBookStock(c *gin.Context) {
	id, ok := pathID(c, "bookId")
	if !ok {
		return
	}
	var request struct {
		Stock *int `json:"stock" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	book, err := s.lib.Books.UpdateStock(c.Request.Context(), id, *request.Stock)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookJSON(book))
}

func (s *server) deleteBook(c *gin.Context) {
	id, ok := pathID(c, "bookId")
	if !ok {
		return
	}

	deleted, err := s.lib.Books.Delete(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]gin.H, len(deleted))
	for i := range deleted {
		items[i] = bookJSON(&deleted[i])
	}
	c.JSON(http.StatusOK, gin.H{"deleted": items})
}

type loanRequest struct {
	MemberID uint `json:"memberId" binding:"required"`
	BookID   uint `json:"bookId" binding:"required"`
}

func (s *server) borrowBook(c *gin.Context) {
	var request loanRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	conf, err := s.lib.Loans.Borrow(c.Request.Context(), request.MemberID, request.BookID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, confirmationJSON(conf))
}

func (s *server) returnBook(c *gin.Context) {
	var request loanRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	conf, err := s.lib.Loans.Return(c.Request.Context(), request.MemberID, request.BookID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, confirmationJSON(conf))
}

func (s *server) topBorrowed(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(circulation.DefaultTopLimit)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}

	top, err := s.lib.Reports.TopBorrowed(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]gin.H, len(top))
	for i := range top {
		item := bookJSON(&top[i].Book)
		item["borrowCount"] = top[i].BorrowCount
		items[i] = item
	}
	c.JSON(http.StatusOK, items)
}

func (s *server) overdue(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", strconv.Itoa(circulation.DefaultOverdueDays)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer"})
		return
	}

	loans, err := s.lib.Reports.Overdue(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]gin.H, len(loans))
	for i, l := range loans {
		items[i] = gin.H{
			"memberId":   l.MemberID,
			"bookId":     l.BookID,
			"borrowDate": l.BorrowDate.Format(time.RFC3339),
		}
	}
	c.JSON(http.StatusOK, items)
}

func (s *server) healthCheck(c *gin.Context) {
	if err := database.Ping(s.db); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database ping failed",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// respondError maps the circulation error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, circulation.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, circulation.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, circulation.ErrOutOfStock), errors.Is(err, circulation.ErrBlocked):
		status = http.StatusConflict
	case store.IsStorageError(err):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer"})
		return 0, false
	}
	return uint(id), true
}

func memberJSON(m *models.Member) gin.H {
	return gin.H{
		"memberId": m.MemberID,
		"name":     m.Name,
		"email":    m.Email,
	}
}

func bookJSON(b *models.Book) gin.H {
	return gin.H{
		"bookId":   b.BookID,
		"title":    b.Title,
		"author":   b.Author,
		"category": b.Category,
		"stock":    b.Stock,
	}
}

func confirmationJSON(conf *circulation.Confirmation) gin.H {
	return gin.H{
		"message":    conf.Message,
		"recordId":   conf.RecordID,
		"recordUid":  conf.RecordUid,
		"memberId":   conf.MemberID,
		"bookId":     conf.BookID,
		"title":      conf.Title,
		"stock":      conf.Stock,
		"borrowDate": conf.BorrowDate.Format(time.RFC3339),
		"returnDate": formatOptional(conf.ReturnDate),
	}
}

func formatOptional(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
