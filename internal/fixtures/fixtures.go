// Package fixtures bundles a corpus of application-form pages and a dev
// server for them. The pages cover the behaviors the engine has to survive
// in the wild: late rendering, conditional reveals, custom dropdowns that
// portal their option lists to the end of the body, repeating rows and a
// two-step wizard. Integration tests drive real browsers against this
// corpus; `formscout fixtures` serves it for manual poking.
package fixtures

import (
	"embed"
)

//go:embed pages/*.html
var corpus embed.FS

// PageInfo describes one fixture page.
type PageInfo struct {
	File  string
	Title string
	Notes string
}

// Pages lists the corpus.
func Pages() []PageInfo {
	return []PageInfo{
		{"static.html", "Static form", "native controls only, no scripting"},
		{"delayed.html", "Delayed render", "form injected 150ms after load"},
		{"conditional.html", "Conditional reveal", "radio choice reveals a required field"},
		{"portal.html", "Custom dropdowns", "local listbox and body-portal overlay, 150ms open delay"},
		{"repeat.html", "Repeating rows", "indexed phone rows with add and remove"},
		{"wizard-1.html", "Wizard step 1", "advances to step 2 through a Next control"},
		{"wizard-2.html", "Wizard step 2", "final step, submits the application"},
		{"confirm.html", "Confirmation", "terminal page carrying the confirmation marker"},
	}
}

// Page returns the raw markup of one fixture page.
func Page(file string) ([]byte, error) {
	return corpus.ReadFile("pages/" + file)
}
