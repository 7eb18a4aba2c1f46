// Package web embeds the browser-side client assets: the script injected
// into served decks, the presenter console, and the audience question page.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var assets embed.FS

// Static returns the embedded asset tree rooted at the asset names, for
// serving under /_/client/.
func Static() http.FileSystem {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}

func page(name string) []byte {
	data, err := assets.ReadFile("static/" + name)
	if err != nil {
		panic(err)
	}
	return data
}

func PresenterHTML() []byte { return page("presenter.html") }

func QuestionsHTML() []byte { return page("questions.html") }
