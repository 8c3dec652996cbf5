package dto

import "time"

// BlogPost is a published article.
type BlogPost struct {
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Excerpt     string    `json:"excerpt"`
	Body        string    `json:"body"`
	Author      string    `json:"author"`
	Tags        []string  `json:"tags"`
	PublishedAt time.Time `json:"published_at"`
}

// BlogPostCreateRequest publishes a new article.
type BlogPostCreateRequest struct {
	Title   string   `json:"title" validate:"required,min=3,max=200"`
	Excerpt string   `json:"excerpt" validate:"max=500"`
	Body    string   `json:"body" validate:"required,max=50000"`
	Tags    []string `json:"tags" validate:"max=10,dive,max=32"`
}
