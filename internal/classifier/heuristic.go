package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/element-memory/internal/model"
)

// section is a named group of keywords recognised in tags, ids and classes.
type section struct {
	name     string
	keywords []string
	purpose  string
}

// sections is checked in order; the first match wins.
var sections = []section{
	{"navigation", []string{"nav", "menu", "navbar", "navigation"}, "Helps users move between pages of the site"},
	{"header", []string{"header", "masthead", "banner"}, "Introduces the page and carries site branding"},
	{"footer", []string{"footer", "bottom", "copyright"}, "Holds secondary links and legal information"},
	{"content", []string{"main", "content", "article", "section"}, "Presents the primary content of the page"},
	{"sidebar", []string{"sidebar", "aside", "widget"}, "Offers supplementary content next to the main content"},
	{"search", []string{"search", "find", "query"}, "Lets users search the site"},
	{"login", []string{"login", "signin", "auth"}, "Lets users sign in to an account"},
	{"contact", []string{"contact", "email", "phone", "address"}, "Shows ways to get in touch"},
}

// Heuristic classifies elements from tag, id and class keywords without a
// model. It is deterministic and never fails.
type Heuristic struct{}

// NewHeuristic returns a keyword-based classifier.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

func (h *Heuristic) Classify(ctx context.Context, d model.ElementDescriptor) (model.Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tag := strings.ToLower(d.Tag)
	if tag == "" {
		tag = "div"
	}
	attrs := strings.ToLower(d.ID + " " + d.Classes)

	for _, s := range sections {
		for _, kw := range s.keywords {
			if tag == kw {
				return s.classify(d, tag, kw, 0.8, "tag"), nil
			}
		}
	}
	for _, s := range sections {
		for _, kw := range s.keywords {
			if strings.Contains(attrs, kw) {
				return s.classify(d, tag, kw, 0.6, "attribute"), nil
			}
		}
	}

	c := model.Classification{
		"understanding": fmt.Sprintf("Generic <%s> element", tag),
		"purpose":       "Unknown",
		"confidence":    0.3,
		"key_elements":  []any{tag},
		"classifier":    ProviderHeuristic,
	}
	if d.Clickable {
		c["click_behavior"] = clickBehavior(d)
	}
	return c, nil
}

func (s section) classify(d model.ElementDescriptor, tag, keyword string, confidence float64, source string) model.Classification {
	c := model.Classification{
		"understanding": fmt.Sprintf("%s section (<%s>)", titleCase(s.name), tag),
		"purpose":       s.purpose,
		"user_intent":   s.purpose,
		"confidence":    confidence,
		"key_elements":  []any{keyword},
		"section":       s.name,
		"classifier":    ProviderHeuristic,
		"notes":         fmt.Sprintf("matched %q in %s", keyword, source),
	}
	if d.Clickable {
		c["click_behavior"] = clickBehavior(d)
	}
	return c
}

func clickBehavior(d model.ElementDescriptor) string {
	if d.Href != "" {
		return "Navigates to " + d.Href
	}
	return "Triggers an action on the page"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
