package expense

import "time"

// Category is one of the eight fixed expense categories.
type Category string

const (
	CategoryFood          Category = "Food"
	CategoryTransport     Category = "Transport"
	CategoryShopping      Category = "Shopping"
	CategoryEntertainment Category = "Entertainment"
	CategoryUtilities     Category = "Utilities"
	CategoryHealth        Category = "Health"
	CategoryRent          Category = "Rent"
	CategoryMisc          Category = "Misc"
)

// Categories lists every category in its fixed display/iteration order.
var Categories = []Category{
	CategoryFood,
	CategoryTransport,
	CategoryShopping,
	CategoryEntertainment,
	CategoryUtilities,
	CategoryHealth,
	CategoryRent,
	CategoryMisc,
}

// ParseCategory resolves a string to a known category. Unmatched input
// resolves to Misc.
func ParseCategory(s string) Category {
	for _, c := range Categories {
		if string(c) == s {
			return c
		}
	}
	return CategoryMisc
}

// Draft is an extracted-but-unconfirmed expense. Drafts are produced by the
// text extraction engine or the receipt scanner and become records only after
// passing through review.
type Draft struct {
	Amount      float64  `json:"amount"`
	Currency    string   `json:"currency"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Date        string   `json:"date"` // YYYY-MM-DD
	Confidence  float64  `json:"confidence"`
}

// Expense is a committed expense record.
type Expense struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	Date        string    `json:"date"` // YYYY-MM-DD
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Update carries partial field changes for an existing record. Nil fields are
// left untouched.
type Update struct {
	Amount      *float64
	Currency    *string
	Description *string
	Category    *Category
	Date        *string
}
