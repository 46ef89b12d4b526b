package core

import (
	"context"
	"database/sql"
)

type (
	DBExecutor interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	DB interface {
		DBExecutor

		BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
		PingContext(ctx context.Context) error
	}

	// Transactor runs fn within a single transaction. Repositories called with the ctx
	// handed to fn take part in that transaction; any error rolls it back.
	Transactor interface {
		InTx(ctx context.Context, fn func(ctx context.Context) error) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// Page is a 1-based page request.
type Page struct {
	Number  int
	PerPage int
}

func NewPage(number, perPage, maxPerPage int) Page {
	if number < 1 {
		number = 1
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = maxPerPage
	}
	return Page{Number: number, PerPage: perPage}
}

func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.PerPage
}

// Paginated is a page of results along with the total count of matching rows.
type Paginated struct {
	Page    int         `json:"page"`
	PerPage int         `json:"per_page"`
	Total   int         `json:"total"`
	Pages   int         `json:"pages"`
	Items   interface{} `json:"items"`
}

func NewPaginated(p Page, total int, items interface{}) Paginated {
	pages := 0
	if p.PerPage > 0 {
		pages = (total + p.PerPage - 1) / p.PerPage
	}
	return Paginated{Page: p.Number, PerPage: p.PerPage, Total: total, Pages: pages, Items: items}
}
