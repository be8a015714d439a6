package catalog

import "time"

// Kind selects which catalog an item belongs to. Products and services share
// one code path; the kind decides which fields are required.
type Kind string

const (
	KindProduct Kind = "product"
	KindService Kind = "service"
)

func (k Kind) Plural() string {
	return string(k) + "s"
}

// ServiceCategories are the categories a service may be filed under.
var ServiceCategories = []string{"haircut", "massage", "facial", "nails", "makeup", "spa", "other"}

type Rating struct {
	UserID string    `bson:"userId" json:"userId"`
	Rating int       `bson:"rating" json:"rating"`
	Review string    `bson:"review,omitempty" json:"review,omitempty"`
	Date   time.Time `bson:"date" json:"date"`
}

type Item struct {
	ID          string  `bson:"_id,omitempty" json:"id"`
	Kind        Kind    `bson:"kind" json:"kind"`
	Name        string  `bson:"name" json:"name"`
	Slug        string  `bson:"slug" json:"slug"`
	Description string  `bson:"description,omitempty" json:"description,omitempty"`
	Price       float64 `bson:"price" json:"price"`
	Category    string  `bson:"category,omitempty" json:"category,omitempty"`
	Image       string  `bson:"image,omitempty" json:"image,omitempty"`
	IsActive    bool    `bson:"isActive" json:"isActive"`

	Stock    *int     `bson:"stock,omitempty" json:"stock,omitempty"`
	Sizes    []string `bson:"sizes,omitempty" json:"sizes,omitempty"`
	Pincodes []string `bson:"pincodes,omitempty" json:"pincodes,omitempty"`

	Duration      int      `bson:"duration,omitempty" json:"duration,omitempty"`
	Availability  bool     `bson:"availability" json:"availability"`
	CreatedBy     string   `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	Ratings       []Rating `bson:"ratings,omitempty" json:"ratings,omitempty"`
	AverageRating float64  `bson:"averageRating" json:"averageRating"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Bookable reports whether a service can currently take bookings.
func (i Item) Bookable() bool {
	return i.Kind == KindService && i.IsActive && i.Availability
}

type UpsertRequest struct {
	Name         string   `json:"name" validate:"required,max=200"`
	Description  string   `json:"description" validate:"omitempty,max=5000"`
	Price        *float64 `json:"price" validate:"required,gte=0"`
	Category     string   `json:"category" validate:"omitempty,max=100"`
	Image        string   `json:"image" validate:"omitempty,url"`
	IsActive     *bool    `json:"isActive"`
	Stock        *int     `json:"stock" validate:"omitempty,gte=0"`
	Sizes        []string `json:"sizes" validate:"omitempty,dive,max=50"`
	Pincodes     []string `json:"pincodes" validate:"omitempty,dive,numeric,len=6"`
	Duration     *int     `json:"duration" validate:"omitempty,gte=1"`
	Availability *bool    `json:"availability"`
}

type RatingRequest struct {
	Rating int    `json:"rating" validate:"required,gte=1,lte=5"`
	Review string `json:"review" validate:"omitempty,max=2000"`
}

type ListFilter struct {
	Category   string
	Search     string
	ActiveOnly bool
	MinPrice   *float64
	MaxPrice   *float64
}

type ListQuery struct {
	Filter    ListFilter
	Limit     int64
	Offset    int64
	SortField string
	SortDesc  bool
}
