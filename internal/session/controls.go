package session

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"formscout/internal/dom"
	"formscout/internal/domain/entity"
	"formscout/internal/stability"
)

var (
	submitRe = regexp.MustCompile(`(?i)\b(submit|apply|send|finish|complete)\b`)
	nextRe   = regexp.MustCompile(`(?i)\b(next|continue|proceed)\b`)
)

// nextTarget returns the control that advances past the given page, or ""
// when the page is the last one. A profile that declares its pages is
// authoritative; only undeclared pages fall back to caption detection.
func (s *Session) nextTarget(doc *dom.Document, pageIdx int) string {
	if pageIdx < len(s.profile.Pages) {
		return s.profile.Pages[pageIdx].Next
	}
	return detectNext(doc)
}

// advance leaves the current page through the next control, gated by the
// same required-field check a submission gets, and opens the following
// page record once the document has moved off the old one.
func (s *Session) advance(ctx context.Context, target string, pageIdx int) error {
	page := s.currentPage()
	snap := page.Latest()
	for _, id := range snap.VisibleRequired() {
		if f := snap.Field(id); f != nil && !f.Filled() {
			err := entity.NewRequiredFieldUnfillable(id, "required field empty before page advance").WithSnapshot(snap)
			s.abandon(err.Error())
			return err
		}
	}

	preFingerprint := snap.Fingerprint
	preLocation := s.driver.CurrentLocation()
	s.log.Info("advancing past page", "page", page.Page, "target", target)
	if err := s.driver.DispatchClick(ctx, target); err != nil {
		return fmt.Errorf("advance: %w", err)
	}
	s.state.Phase = entity.PhaseDiscovering
	moved := func(o *stability.Observation) bool {
		return o.Snapshot.Fingerprint != preFingerprint || o.Location != preLocation
	}
	if _, err := s.awaitSettledRetrying(ctx, stability.Options{Predicate: moved}); err != nil {
		return fmt.Errorf("advance: %w", err)
	}
	s.state.OpenPage(s.profile.PageAt(pageIdx+1).Name, s.driver.CurrentLocation())
	return nil
}

// detectSubmit finds the page's submission control: an explicit
// type=submit input or button first, then any clickable whose caption
// reads like a submission.
func detectSubmit(doc *dom.Document) string {
	var explicit, textual *html.Node
	scope := doc.Body()
	if scope == nil {
		scope = doc.Root()
	}
	dom.Walk(scope, func(n *html.Node) bool {
		if explicit != nil {
			return false
		}
		if !dom.Visible(n) {
			return false
		}
		switch n.Data {
		case "input":
			if strings.EqualFold(dom.Attr(n, "type"), "submit") {
				explicit = n
			}
			return false
		case "button":
			if strings.EqualFold(dom.Attr(n, "type"), "submit") {
				explicit = n
			} else if textual == nil && submitRe.MatchString(dom.Text(n)) {
				textual = n
			}
			return false
		}
		if strings.EqualFold(dom.Attr(n, "role"), "button") {
			if textual == nil && submitRe.MatchString(dom.Text(n)) {
				textual = n
			}
			return false
		}
		return true
	})
	pick := explicit
	if pick == nil {
		pick = textual
	}
	if pick == nil {
		return ""
	}
	return doc.Locator(pick)
}

// detectNext finds a wizard's forward control by caption: a button, link
// or button-role element reading next/continue/proceed.
func detectNext(doc *dom.Document) string {
	var found *html.Node
	scope := doc.Body()
	if scope == nil {
		scope = doc.Root()
	}
	dom.Walk(scope, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if !dom.Visible(n) {
			return false
		}
		var caption string
		switch {
		case n.Data == "button" || n.Data == "a":
			caption = dom.Text(n)
		case n.Data == "input":
			typ := strings.ToLower(dom.Attr(n, "type"))
			if typ != "submit" && typ != "button" {
				return false
			}
			caption = dom.Attr(n, "value")
		case strings.EqualFold(dom.Attr(n, "role"), "button"):
			caption = dom.Text(n)
		default:
			return true
		}
		if nextRe.MatchString(caption) {
			found = n
		}
		return false
	})
	if found == nil {
		return ""
	}
	return doc.Locator(found)
}
