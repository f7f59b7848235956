package api

import "time"

type Post struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Slug         string    `json:"slug"`
	Body         string    `json:"body"`
	Snippet      string    `json:"snippet"`
	Filename     string    `json:"filename"`
	URL          string    `json:"url"`
	PubDate      time.Time `json:"pub_date"`
	LastEditDate time.Time `json:"last_edit_date"`
}

type PostList struct {
	Posts  []Post `json:"posts"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
