package lms

import (
	"sort"
	"strings"
	"time"
)

type OrderBy string

const (
	OrderByName      OrderBy = "NAME"
	OrderByStartTime OrderBy = "START_TIME"
	OrderByEndTime   OrderBy = "END_TIME"
)

// ParseOrderBy falls back to NAME for unknown values.
func ParseOrderBy(s string) OrderBy {
	switch o := OrderBy(strings.ToUpper(strings.TrimSpace(s))); o {
	case OrderByName, OrderByStartTime, OrderByEndTime:
		return o
	}
	return OrderByName
}

type SortOrder string

const (
	Ascending  SortOrder = "ASCENDING"
	Descending SortOrder = "DESCENDING"
)

// ParseSortOrder falls back to ASCENDING for unknown values.
func ParseSortOrder(s string) SortOrder {
	switch o := SortOrder(strings.ToUpper(strings.TrimSpace(s))); o {
	case Ascending, Descending:
		return o
	}
	return Ascending
}

// QuizFilter selects one page of quizzes. PageNumber is 1-based.
type QuizFilter struct {
	NameLike   string
	FromTime   time.Time
	OrderBy    OrderBy
	SortOrder  SortOrder
	PageNumber int
	PageSize   int
}

func (f QuizFilter) normalized() QuizFilter {
	if f.PageNumber < 1 {
		f.PageNumber = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 10
	}
	f.OrderBy = ParseOrderBy(string(f.OrderBy))
	f.SortOrder = ParseSortOrder(string(f.SortOrder))
	return f
}

// Matches applies the name and start-time criteria of f to q.
func (f QuizFilter) Matches(q QuizData) bool {
	if f.NameLike != "" && !strings.Contains(strings.ToLower(q.Name), strings.ToLower(f.NameLike)) {
		return false
	}
	if !f.FromTime.IsZero() {
		startsAfter := !q.StartTime.Before(f.FromTime)
		stillRunning := q.EndTime != nil && q.EndTime.After(f.FromTime)
		if !startsAfter && !stillRunning {
			return false
		}
	}
	return true
}

type Page[T any] struct {
	NumberOfPages int       `json:"numberOfPages"`
	PageNumber    int       `json:"pageNumber"`
	PageSize      int       `json:"pageSize"`
	SortBy        OrderBy   `json:"sortBy"`
	SortOrder     SortOrder `json:"sortOrder"`
	Content       []T       `json:"content"`
}

// PageQuizzes filters, sorts and slices all client-side. A page number past
// the last page yields an empty page.
func PageQuizzes(all []QuizData, f QuizFilter) Page[QuizData] {
	f = f.normalized()

	matched := make([]QuizData, 0, len(all))
	for _, q := range all {
		if f.Matches(q) {
			matched = append(matched, q)
		}
	}
	SortQuizzes(matched, f.OrderBy, f.SortOrder)

	pages := (len(matched) + f.PageSize - 1) / f.PageSize
	out := Page[QuizData]{
		NumberOfPages: pages,
		PageNumber:    f.PageNumber,
		PageSize:      f.PageSize,
		SortBy:        f.OrderBy,
		SortOrder:     f.SortOrder,
		Content:       []QuizData{},
	}
	start := (f.PageNumber - 1) * f.PageSize
	if start >= len(matched) {
		return out
	}
	end := start + f.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	out.Content = append(out.Content, matched[start:end]...)
	return out
}

func SortQuizzes(qs []QuizData, by OrderBy, order SortOrder) {
	less := func(a, b QuizData) int {
		switch by {
		case OrderByStartTime:
			if c := a.StartTime.Compare(b.StartTime); c != 0 {
				return c
			}
		case OrderByEndTime:
			if c := compareEnd(a.EndTime, b.EndTime); c != 0 {
				return c
			}
		}
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	}
	sort.SliceStable(qs, func(i, j int) bool {
		c := less(qs[i], qs[j])
		if order == Descending {
			return c > 0
		}
		return c < 0
	})
}

// open-ended quizzes sort after quizzes with an end time
func compareEnd(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}
