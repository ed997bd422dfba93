package query

// Options carries the portlet-level filters and the context needed to build
// the search criteria for one render.
type Options struct {
	// Root is the resolved search root path (navigation root + sub-path).
	Root string
	// Keywords filters on Subject. Ignored when Saved is set.
	Keywords []string
	// ReviewStates filters on review_state. Ignored when Saved is set.
	ReviewStates []string
	// AllReviewStates is used when no review state filter is configured.
	AllReviewStates []string
	// Saved is the criteria decoded from a saved search. Empty criteria are
	// treated as no saved search.
	Saved Criteria
	// Month is the displayed month.
	Month Month
}

// DefineSearchOptions merges portlet filters with a saved search's criteria.
//
// Without saved criteria the result filters on the root path, the portlet
// keywords and the portlet review states. With a saved search its criteria
// are used as they are: keyword and content-type settings of the portlet are
// ignored, tuple-like values become lists, start/end ranges are clamped to
// the displayed month, and a missing review_state falls back to all states.
func DefineSearchOptions(o Options) Criteria {
	if len(o.Saved) == 0 {
		c := Criteria{"path": o.Root}
		if len(o.Keywords) > 0 {
			c["Subject"] = stringsToList(o.Keywords)
		}
		if len(o.ReviewStates) > 0 {
			c["review_state"] = stringsToList(o.ReviewStates)
		} else {
			c["review_state"] = stringsToList(o.AllReviewStates)
		}
		return c
	}

	c := o.Saved.Clone()
	Untuple(c)
	if _, ok := c["start"]; ok {
		FixRangeCriteria(c, "start", o.Month)
	}
	if _, ok := c["end"]; ok {
		FixRangeCriteria(c, "end", o.Month)
	}
	if !c.Has("review_state") {
		c["review_state"] = stringsToList(o.AllReviewStates)
	}
	return c
}

func stringsToList(ss []string) []any {
	out := make([]any, 0, len(ss))
	for _, s := range ss {
		out = append(out, s)
	}
	return out
}
