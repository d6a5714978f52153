package models

// Food is a named dish or ingredient shared across users
type Food struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

// Tag is a free-text label attached to a food within a meal
type Tag struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}
