package interview

import "sort"

// RankedItem is one row of a frequency table. Frequency is the share of
// interviews mentioning the text, as a percentage of all records.
type RankedItem struct {
	Text      string  `json:"text"`
	Count     int     `json:"count"`
	Frequency float64 `json:"frequency"`
}

// SampledQuote is a quote tagged with its originating project.
type SampledQuote struct {
	Quote        string `json:"quote"`
	Speaker      string `json:"speaker"`
	Sentiment    string `json:"sentiment"`
	ProjectTitle string `json:"project_title"`
}

// Overview carries the dashboard counters.
type Overview struct {
	TotalInterviews int    `json:"total_interviews"`
	ProjectCount    int    `json:"project_count"`
	TopPainPoint    string `json:"top_pain_point"`
	LatestLearning  string `json:"latest_learning"`
}

// AggregateView is the cross-interview projection the dashboard renders.
// It is derived, never persisted, and recomputed from scratch per request;
// the cost is proportional to one user's insight count, which stays small.
type AggregateView struct {
	Overview        Overview       `json:"overview"`
	PainPoints      []RankedItem   `json:"pain_points"`
	FeatureRequests []RankedItem   `json:"feature_requests"`
	Learned         []string       `json:"learned"`
	BuildNext       []string       `json:"build_next"`
	Quotes          []SampledQuote `json:"quotes"`
}

const (
	topRankedItems     = 5
	maxSummaryRollups  = 5
	maxSampledQuotes   = 5
	learningTruncation = 50
)

// BuildAggregateView computes the dashboard projection over one user's
// insight records, newest first. A pure function: zero records yields a
// valid view with zeroed counters and "N/A" placeholders.
func BuildAggregateView(records []InsightRecord) AggregateView {
	view := AggregateView{
		PainPoints:      []RankedItem{},
		FeatureRequests: []RankedItem{},
		Learned:         []string{},
		BuildNext:       []string{},
		Quotes:          []SampledQuote{},
	}

	var painTexts, ideaTexts []string
	projects := map[string]struct{}{}
	for _, rec := range records {
		projects[rec.ProjectID] = struct{}{}
		for _, p := range rec.Insight.PainPoints {
			painTexts = append(painTexts, p.Point)
		}
		for _, f := range rec.Insight.FeatureIdeas {
			ideaTexts = append(ideaTexts, f.Idea)
		}
		if len(view.Learned) < maxSummaryRollups && rec.Insight.Summary.WhatWeLearned != "" {
			view.Learned = append(view.Learned, rec.Insight.Summary.WhatWeLearned)
		}
		if len(view.BuildNext) < maxSummaryRollups && rec.Insight.Summary.WhatToBuildNext != "" {
			view.BuildNext = append(view.BuildNext, rec.Insight.Summary.WhatToBuildNext)
		}
		for _, q := range rec.Insight.Quotes {
			if len(view.Quotes) >= maxSampledQuotes {
				break
			}
			view.Quotes = append(view.Quotes, SampledQuote{
				Quote:        q.Quote,
				Speaker:      q.Speaker,
				Sentiment:    q.Sentiment,
				ProjectTitle: rec.ProjectTitle,
			})
		}
	}

	view.PainPoints = rankTexts(painTexts, len(records), topRankedItems)
	view.FeatureRequests = rankTexts(ideaTexts, len(records), topRankedItems)

	view.Overview = Overview{
		TotalInterviews: len(records),
		ProjectCount:    len(projects),
		TopPainPoint:    "N/A",
		LatestLearning:  "N/A",
	}
	if len(view.PainPoints) > 0 {
		view.Overview.TopPainPoint = view.PainPoints[0].Text
	}
	if len(view.Learned) > 0 {
		view.Overview.LatestLearning = truncate(view.Learned[0], learningTruncation)
	}
	return view
}

// rankTexts groups by exact text match in encounter order and sorts by
// occurrence count descending. The stable sort keeps first-encountered order
// among ties.
func rankTexts(texts []string, total, top int) []RankedItem {
	index := map[string]int{}
	items := []RankedItem{}
	for _, text := range texts {
		if text == "" {
			continue
		}
		if i, ok := index[text]; ok {
			items[i].Count++
			continue
		}
		index[text] = len(items)
		items = append(items, RankedItem{Text: text, Count: 1})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Count > items[j].Count })
	if total > 0 {
		for i := range items {
			items[i].Frequency = float64(items[i].Count) / float64(total) * 100
		}
	}
	if len(items) > top {
		items = items[:top]
	}
	return items
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
