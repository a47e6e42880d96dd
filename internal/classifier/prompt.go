package classifier

import (
	"fmt"
	"strings"

	"github.com/rcliao/element-memory/internal/model"
)

const systemPrompt = "You are a web UX expert analyzing webpage elements."

// BuildPrompt renders the user prompt for one element. The model is asked
// for free-form understanding, not a fixed category.
func BuildPrompt(d model.ElementDescriptor) string {
	var b strings.Builder

	text := d.Text
	if r := []rune(text); len(r) > 200 {
		text = string(r[:200])
	}
	href := "N/A"
	if d.Clickable {
		href = orNone(d.Href)
	}

	b.WriteString("You are analyzing a section of a webpage. Describe what this element is and its purpose in natural language.\n\n")
	b.WriteString("Element Details:\n")
	fmt.Fprintf(&b, "- Tag: <%s>\n", orValue(d.Tag, "unknown"))
	fmt.Fprintf(&b, "- ID: %s\n", orNone(d.ID))
	fmt.Fprintf(&b, "- Classes: %s\n", orNone(d.Classes))
	fmt.Fprintf(&b, "- Size: %.0fx%.0f pixels\n", d.Rect.Width, d.Rect.Height)
	fmt.Fprintf(&b, "- Position: (%.0f, %.0f)\n", d.Rect.X, d.Rect.Y)
	fmt.Fprintf(&b, "- Text preview: %s\n", orValue(text, "No text"))
	fmt.Fprintf(&b, "- Clickable: %t\n", d.Clickable)
	fmt.Fprintf(&b, "- Href: %s\n", href)

	if c := d.Context; c != nil {
		b.WriteString("\n")
		if c.Parent != nil {
			fmt.Fprintf(&b, "Parent element: <%s> %s\n", c.Parent.Tag, c.Parent.Selector)
		}
		if len(c.Siblings) > 0 {
			tags := make([]string, 0, 3)
			for _, s := range c.Siblings[:min(len(c.Siblings), 3)] {
				tags = append(tags, s.Tag)
			}
			fmt.Fprintf(&b, "Sibling elements: %s\n", strings.Join(tags, ", "))
		}
		if len(c.Children) > 0 {
			parts := make([]string, 0, 5)
			for _, ch := range c.Children[:min(len(c.Children), 5)] {
				p := ch.Tag
				if ch.Text != "" {
					t := ch.Text
					if r := []rune(t); len(r) > 20 {
						t = string(r[:20])
					}
					p += " (" + t + "...)"
				}
				parts = append(parts, p)
			}
			fmt.Fprintf(&b, "Child elements: %s\n", strings.Join(parts, ", "))
		}
	}

	b.WriteString(`
Provide a thoughtful analysis of:
1. What this element/section represents (be specific and descriptive)
2. Its purpose on the page
3. What users likely want when they interact with it
4. Your confidence level (0-1) in this analysis
5. Key identifying features that led to your conclusion
`)
	if d.Clickable {
		b.WriteString("6. What happens when users click this element\n")
	}
	b.WriteString(`
Don't constrain yourself to predefined categories. Describe it as you naturally understand it.

Respond in JSON format:
{
    "understanding": "Natural description of what this is",
    "purpose": "What this helps users accomplish",
    "user_intent": "What users likely want when they see/use this",
    "confidence": 0.0-1.0,
    "key_elements": ["identifying", "features"],
`)
	if d.Clickable {
		b.WriteString(`    "click_behavior": "What happens when clicked",` + "\n")
	}
	b.WriteString(`    "notes": "Any additional observations"
}`)
	return b.String()
}

func orNone(s string) string {
	return orValue(s, "none")
}

func orValue(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
