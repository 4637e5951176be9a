package library

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/openshelf/openshelf-go/internal/rest"
)

// Book is a catalog record after normalization: text fields trimmed and the
// price rendered with two decimals.
type Book struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Cover       string   `json:"cover"`
	Price       string   `json:"price"`
	IsHidden    FlexBool `json:"isHidden"`
	PageCount   int      `json:"pageCount"`
}

// CatalogQuery carries the browse filters; zero values mean "unfiltered".
type CatalogQuery struct {
	Category string
	Search   string
	Sort     string
	Page     int
}

// Books serves the catalog. The backend exposes books under the legacy
// "products" resource name.
type Books struct {
	client *rest.Client
	logger *slog.Logger
}

const booksResource = "products"

// NewBooks builds the catalog service.
func NewBooks(client *rest.Client, logger *slog.Logger) *Books {
	if logger == nil {
		logger = slog.Default()
	}
	return &Books{client: client, logger: logger.With(slog.String("component", "library-books"))}
}

// Catalog fetches a catalog page. Results come from the response cache when a
// fresh entry exists for the same filters.
func (b *Books) Catalog(ctx context.Context, query CatalogQuery) ([]Book, error) {
	q := b.client.Resource(booksResource)
	if query.Category != "" {
		q = q.Filter(fmt.Sprintf("category = %q", query.Category))
	}
	if query.Search != "" {
		q = q.Search(query.Search)
	}
	if query.Sort != "" {
		q = q.Sort(query.Sort)
	}
	if query.Page > 0 {
		q = q.Page(query.Page)
	}

	raw, err := q.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var books []Book
	if err := json.Unmarshal(raw, &books); err != nil {
		return nil, fmt.Errorf("library: decode catalog: %w", err)
	}
	for i := range books {
		normalizeBook(&books[i])
	}
	return books, nil
}

// Book fetches one catalog record by id.
func (b *Books) Book(ctx context.Context, id int64) (Book, error) {
	raw, err := b.client.Resource(booksResource).
		WithID(strconv.FormatInt(id, 10)).
		Get(ctx)
	if err != nil {
		return Book{}, err
	}
	var book Book
	if err := json.Unmarshal(raw, &book); err != nil {
		return Book{}, fmt.Errorf("library: decode book: %w", err)
	}
	normalizeBook(&book)
	return book, nil
}

// Create adds a catalog record and drops any cached catalog responses so the
// next browse sees it.
func (b *Books) Create(ctx context.Context, book Book) (Book, error) {
	raw, err := b.client.Resource(booksResource).
		WithBody(book).
		Create(ctx)
	if err != nil {
		return Book{}, err
	}
	var created Book
	if err := json.Unmarshal(raw, &created); err != nil {
		return Book{}, fmt.Errorf("library: decode created book: %w", err)
	}
	normalizeBook(&created)
	b.invalidateCatalog(ctx)
	return created, nil
}

// Update replaces a catalog record.
func (b *Books) Update(ctx context.Context, book Book) (Book, error) {
	raw, err := b.client.Resource(booksResource).
		WithID(strconv.FormatInt(book.ID, 10)).
		WithBody(book).
		Update(ctx)
	if err != nil {
		return Book{}, err
	}
	var updated Book
	if err := json.Unmarshal(raw, &updated); err != nil {
		return Book{}, fmt.Errorf("library: decode updated book: %w", err)
	}
	normalizeBook(&updated)
	b.invalidateCatalog(ctx)
	return updated, nil
}

// Remove deletes a catalog record.
func (b *Books) Remove(ctx context.Context, id int64) error {
	_, err := b.client.Resource(booksResource).
		WithID(strconv.FormatInt(id, 10)).
		Delete(ctx)
	if err != nil {
		return err
	}
	b.invalidateCatalog(ctx)
	return nil
}

func (b *Books) invalidateCatalog(ctx context.Context) {
	if err := b.client.InvalidateCache(ctx, "/"+booksResource); err != nil {
		b.logger.Warn("catalog cache invalidation failed", slog.Any("error", err))
	}
}

// normalizeBook trims text fields and renders the price with two decimals.
// The backend stores prices as loose strings; "12" and "12.5" both come back.
func normalizeBook(book *Book) {
	book.Title = strings.TrimSpace(book.Title)
	book.Author = strings.TrimSpace(book.Author)
	book.Description = strings.TrimSpace(book.Description)
	book.Category = strings.TrimSpace(book.Category)
	book.Price = formatPrice(book.Price)
}

func formatPrice(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return trimmed
	}
	return strconv.FormatFloat(value, 'f', 2, 64)
}
