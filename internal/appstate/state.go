// Package appstate defines the application's state slices and their
// persistence policies. Slices never read each other; gating and other
// composition live in the session package.
package appstate

import (
	"log/slog"

	"github.com/openshelf/openshelf-go/internal/store"
)

// AuthUser mirrors the backend user record fields the client keeps locally.
type AuthUser struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Image        string `json:"image"`
	PasswordHash string `json:"passwordHash,omitempty"`
}

// AuthState drives login, subscription gating, and device binding.
//
// IsSubscriptionExpired is derived by comparing ExpiryDate to the wall clock
// and must be recomputed whenever ExpiryDate changes or a check runs; it is
// never true while IsSubscribed is false.
type AuthState struct {
	IsLoggedIn            bool     `json:"isLoggedIn"`
	User                  AuthUser `json:"user"`
	Session               string   `json:"session"`
	IsAdmin               bool     `json:"isAdmin"`
	IsDeleted             bool     `json:"isDeleted"`
	ExpiryDate            string   `json:"expiryDate"`
	IsSubscribed          bool     `json:"isSubscribed"`
	IsSubscriptionExpired bool     `json:"isSubscriptionExpired"`
	ForcePasswordReset    bool     `json:"forcePasswordReset"`
	ForceLogout           bool     `json:"forceLogout"`
	LastLogin             string   `json:"lastLogin"`
	LoginDeviceID         string   `json:"loginDeviceId"`
	DeviceToken           string   `json:"deviceToken"`
}

// ThemeState holds display preferences.
type ThemeState struct {
	Mode      string  `json:"mode"`
	FontScale float64 `json:"fontScale"`
}

// LibraryState holds the catalog browsing filters.
type LibraryState struct {
	Category string `json:"category"`
	Query    string `json:"query"`
	Sort     string `json:"sort"`
	Page     int    `json:"page"`
}

// CartItem is one pending subscription or purchase line.
type CartItem struct {
	ProductID int64  `json:"productId"`
	Title     string `json:"title"`
	Price     string `json:"price"`
}

// CartState holds the pending checkout.
type CartState struct {
	Items      []CartItem `json:"items"`
	PaymentRef string     `json:"paymentRef"`
}

// FormState holds in-progress form values and validation errors.
type FormState struct {
	Values map[string]string `json:"values"`
	Errors map[string]string `json:"errors"`
}

// BookmarkState holds reading history and saved books.
type BookmarkState struct {
	Bookmarks      []int64 `json:"bookmarks"`
	RecentlyViewed []int64 `json:"recentlyViewed"`
	LastPosition   string  `json:"lastPosition"`
}

// Stores bundles every slice. Construct one per application via New and pass
// it explicitly; there are no package-level singletons.
type Stores struct {
	Auth     *store.Slice[AuthState]
	Theme    *store.Slice[ThemeState]
	Library  *store.Slice[LibraryState]
	Cart     *store.Slice[CartState]
	Form     *store.Slice[FormState]
	Bookmark *store.Slice[BookmarkState]
}

// New initializes every slice from its static default merged with whatever the
// durable storage holds under each slice's persistence policy.
func New(storage store.Storage, logger *slog.Logger) *Stores {
	return &Stores{
		Auth: store.NewSlice("auth", defaultAuth(), storage, logger,
			store.PersistAllFields()),
		Theme: store.NewSlice("theme", ThemeState{Mode: "light", FontScale: 1.0}, storage, logger,
			store.PersistAllFields()),
		Library: store.NewSlice("library", LibraryState{Sort: "title"}, storage, logger,
			store.PersistFieldList("category", "sort")),
		Cart: store.NewSlice("cart", CartState{}, storage, logger),
		Form: store.NewSlice("form", FormState{
			Values: map[string]string{},
			Errors: map[string]string{},
		}, storage, logger),
		Bookmark: store.NewSlice("bookmark", BookmarkState{}, storage, logger,
			store.PersistFieldList("bookmarks", "recentlyViewed")),
	}
}

func defaultAuth() AuthState {
	return AuthState{}
}
