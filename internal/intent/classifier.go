// Package intent scores queries against a keyword taxonomy of user segments,
// intent categories and jobs to be done.
package intent

import (
	"strings"

	"personal-rag/internal/models"
)

const (
	DefaultSegment  = "general"
	DefaultCategory = "functional"
	DefaultJob      = "general"
)

type Classifier struct {
	taxonomy *Taxonomy
	segments map[string]*Segment
	framing  map[string]string
}

func NewClassifier(t *Taxonomy) *Classifier {
	c := &Classifier{
		taxonomy: t,
		segments: make(map[string]*Segment, len(t.Segments)),
		framing:  make(map[string]string, len(t.Categories)),
	}
	for i := range t.Segments {
		c.segments[t.Segments[i].Name] = &t.Segments[i]
	}
	for _, cat := range t.Categories {
		c.framing[cat.Name] = cat.Framing
	}
	return c
}

// Load builds a classifier from the taxonomy at path, or the built-in one.
func Load(path string) (*Classifier, error) {
	t, err := LoadTaxonomy(path)
	if err != nil {
		return nil, err
	}
	return NewClassifier(t), nil
}

// Classify scores query by literal keyword hits. Every keyword counts at most
// once, the first entry wins ties and nothing matched yields the defaults.
func (c *Classifier) Classify(query string) models.IntentAnalysis {
	q := strings.ToLower(query)
	result := models.IntentAnalysis{
		PrimarySegment:        DefaultSegment,
		PrimaryIntentCategory: DefaultCategory,
		PrimaryJobToBeDone:    DefaultJob,
		SegmentScores:         make(map[string]int, len(c.taxonomy.Segments)),
		CategoryScores:        make(map[string]int, len(c.taxonomy.Categories)),
		JobScores:             make(map[string]int),
	}

	best := 0
	for _, s := range c.taxonomy.Segments {
		score := 0
		for _, group := range Categories {
			score += hits(q, s.Keywords[group])
		}
		result.SegmentScores[s.Name] = score
		if score > best {
			best = score
			result.PrimarySegment = s.Name
		}
	}

	bestCategory := 0
	for _, cat := range c.taxonomy.Categories {
		score := hits(q, cat.Keywords)
		result.CategoryScores[cat.Name] = score
		if score > bestCategory {
			bestCategory = score
			result.PrimaryIntentCategory = cat.Name
		}
	}

	if seg, ok := c.segments[result.PrimarySegment]; ok {
		bestJob := 0
		for _, job := range seg.Jobs {
			score := hits(q, job.Keywords)
			result.JobScores[job.Name] = score
			if score > bestJob {
				bestJob = score
				result.PrimaryJobToBeDone = job.Name
			}
		}
	}

	if words := len(strings.Fields(query)); words > 0 {
		result.Confidence = float64(best) / float64(words)
	}
	return result
}

// Framing returns the prompt preamble for an analysis; empty for the defaults.
func (c *Classifier) Framing(a models.IntentAnalysis) string {
	var parts []string
	if seg, ok := c.segments[a.PrimarySegment]; ok && seg.Framing != "" {
		parts = append(parts, seg.Framing)
	}
	if a.PrimarySegment != DefaultSegment || a.PrimaryIntentCategory != DefaultCategory {
		if f := c.framing[a.PrimaryIntentCategory]; f != "" {
			parts = append(parts, f)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " ") + "\n\n"
}

func hits(query string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if k != "" && strings.Contains(query, strings.ToLower(k)) {
			n++
		}
	}
	return n
}
