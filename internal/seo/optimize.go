package seo

import (
	"regexp"
	"strings"
)

// MetaTags are the SEO tags generated for one article.
type MetaTags struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Keywords    string `json:"keywords"`
}

var headingRe = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
var nonTextRe = regexp.MustCompile(`[^a-zA-Z0-9\s.,!?]`)

// KeywordDensity returns the keyword's share of the content's words as a
// percentage. Multi-word keywords count phrase occurrences.
func KeywordDensity(content, keyword string) float64 {
	words := strings.Fields(content)
	if len(words) == 0 || keyword == "" {
		return 0
	}
	occurrences := strings.Count(strings.ToLower(content), strings.ToLower(keyword))
	kwWords := len(strings.Fields(keyword))
	return float64(occurrences*kwWords) / float64(len(words)) * 100
}

// OptimizationScore rates content 0-100 for a target keyword. The weights
// favor keyword placement and article length over raw density.
func OptimizationScore(content, keyword string, related []string) int {
	lower := strings.ToLower(content)
	kw := strings.ToLower(keyword)

	score := 0
	if strings.Contains(lower, kw) {
		score += 20
	}

	paragraphs := strings.SplitN(content, "\n\n", 2)
	if len(paragraphs) > 0 && strings.Contains(strings.ToLower(paragraphs[0]), kw) {
		score += 15
	}

	for _, m := range headingRe.FindAllStringSubmatch(content, -1) {
		if strings.Contains(strings.ToLower(m[1]), kw) {
			score += 15
			break
		}
	}

	// 0.5%-2.5% density reads naturally without stuffing.
	if d := KeywordDensity(content, keyword); d >= 0.5 && d <= 2.5 {
		score += 15
	}

	for _, r := range related {
		if r != "" && strings.Contains(lower, strings.ToLower(r)) {
			score += 15
			break
		}
	}

	if n := len(strings.Fields(content)); n >= 800 {
		score += 20
	}

	return score
}

// GenerateMetaTags derives meta tags from an article, forcing the target
// keyword into both title and description when missing.
func GenerateMetaTags(title, content, keyword string) MetaTags {
	paragraphs := strings.SplitN(content, "\n\n", 2)
	firstPara := content
	if len(paragraphs) > 0 && paragraphs[0] != "" {
		firstPara = paragraphs[0]
	}
	if len(firstPara) > 200 {
		firstPara = firstPara[:200]
	}
	description := strings.TrimSpace(nonTextRe.ReplaceAllString(firstPara, ""))

	if len(description) > 155 {
		description = description[:155]
		if i := strings.LastIndex(description, " "); i > 0 {
			description = description[:i]
		}
		description += "..."
	}
	if keyword != "" && !strings.Contains(strings.ToLower(description), strings.ToLower(keyword)) {
		description = strings.TrimSuffix(description, "...")
		description = strings.TrimSpace(description) + ". Learn more about " + keyword + "."
	}

	metaTitle := title
	if keyword != "" && !strings.Contains(strings.ToLower(metaTitle), strings.ToLower(keyword)) {
		if len(metaTitle) < 50 {
			metaTitle += " - " + titleCase(keyword)
		} else {
			metaTitle = titleCase(keyword) + ": " + metaTitle[:40] + "..."
		}
	}

	return MetaTags{
		Title:       metaTitle,
		Description: description,
		Keywords:    strings.ToLower(keyword),
	}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
