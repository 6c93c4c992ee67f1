package news

import (
	_ "embed"
	"encoding/json"
)

//go:embed seed.json
var seedJSON []byte

// Seed returns the posts bundled with the site. They are merged into
// listings at read time and are never written to the store.
func Seed() []Post {
	var posts []Post
	if err := json.Unmarshal(seedJSON, &posts); err != nil {
		panic("news: invalid seed.json: " + err.Error())
	}
	return posts
}
