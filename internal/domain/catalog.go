package domain

import "time"

// Category is a top-level service category. Categories double as provider skills.
type Category struct {
	ID            string    `json:"_id" yaml:"id"`
	Title         string    `json:"title" yaml:"title"`
	Slug          string    `json:"slug" yaml:"slug"`
	SubCategories []string  `json:"subCategories" yaml:"subCategories"`
	CreatedAt     time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt     time.Time `json:"updatedAt" yaml:"-"`
}

// Subcategory refines a Category.
type Subcategory struct {
	ID             string `json:"_id" yaml:"id"`
	Title          string `json:"title" yaml:"title"`
	Slug           string `json:"slug" yaml:"slug"`
	ParentCategory string `json:"parentCategory,omitempty" yaml:"parentCategory"`
}

// Brand is a manufacturer serviced within a category.
type Brand struct {
	ID          string `json:"_id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Slug        string `json:"slug" yaml:"slug"`
	Description string `json:"description,omitempty" yaml:"description"`
	Image       string `json:"image,omitempty" yaml:"image"`
	Category    string `json:"category" yaml:"category"`
}
