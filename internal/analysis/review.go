package analysis

import (
	"fmt"
	"regexp"
	"strings"
)

type Issue struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

type Complexity struct {
	JoinCount      int    `json:"join_count"`
	SubqueryCount  int    `json:"subquery_count"`
	AggregateCount int    `json:"aggregate_count"`
	HasGroupBy     bool   `json:"has_group_by"`
	HasHaving      bool   `json:"has_having"`
	HasOrderBy     bool   `json:"has_order_by"`
	HasDistinct    bool   `json:"has_distinct"`
	Score          int    `json:"complexity_score"`
	Level          string `json:"complexity_level"`
}

type Review struct {
	Query      string     `json:"query"`
	Issues     []Issue    `json:"issues"`
	Complexity Complexity `json:"complexity"`
	Advice     string     `json:"advice,omitempty"`
}

var (
	reSelectStar     = regexp.MustCompile(`\bSELECT\s+\*`)
	reWhereOr        = regexp.MustCompile(`(?s)\bWHERE\b.*\bOR\b`)
	reWhereFunc      = regexp.MustCompile(`(?s)\bWHERE\b.*\b(UPPER|LOWER|SUBSTRING|DATE)\s*\(`)
	reImplicitNum    = regexp.MustCompile(`(?i)WHERE\s+\w+\s*=\s*'\d+'`)
	reLeadingWild    = regexp.MustCompile(`LIKE\s+'%`)
	reJoin           = regexp.MustCompile(`\bJOIN\b`)
	reSelect         = regexp.MustCompile(`\bSELECT\b`)
	reAggregate      = regexp.MustCompile(`\b(COUNT|SUM|AVG|MAX|MIN)\s*\(`)
	reWhere          = reWord("WHERE")
	reFrom           = reWord("FROM")
	reLimit          = reWord("LIMIT")
	reDistinct       = reWord("DISTINCT")
	reOrderBy        = regexp.MustCompile(`\bORDER\s+BY\b`)
	reGroupBy        = regexp.MustCompile(`\bGROUP\s+BY\b`)
	reHaving         = reWord("HAVING")
	reNotInSubselect = regexp.MustCompile(`\bNOT\s+IN\s*\(`)
)

func reWord(word string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + word + `\b`)
}

// ReviewSQL runs pattern checks only. It is advisory and does not parse SQL.
func ReviewSQL(sqlText string) Review {
	upper := strings.ToUpper(sqlText)
	issues := make([]Issue, 0)
	add := func(kind, message, suggestion string) {
		issues = append(issues, Issue{Type: kind, Message: message, Suggestion: suggestion})
	}

	hasWhere := reWhere.MatchString(upper)
	if reSelectStar.MatchString(upper) {
		add("SELECT *", "Using SELECT * can be inefficient", "Specify only the columns you need")
	}
	if reSelect.MatchString(upper) && reFrom.MatchString(upper) && !hasWhere && !reLimit.MatchString(upper) {
		add("No WHERE clause", "Query may return entire table", "Add WHERE clause to filter results or use LIMIT")
	}
	if reWhereOr.MatchString(upper) {
		add("OR in WHERE", "OR conditions can prevent index usage", "Consider using UNION or IN clause instead")
	}
	if reNotInSubselect.MatchString(upper) {
		add("NOT IN with subquery", "NOT IN with subqueries can be slow", "Consider using NOT EXISTS or LEFT JOIN with NULL check")
	}
	if reWhereFunc.MatchString(upper) {
		add("Function on column", "Functions on columns in WHERE prevent index usage", "Consider functional indexes or restructuring query")
	}
	if reImplicitNum.MatchString(sqlText) {
		add("Implicit conversion", "Comparing numeric column with string can prevent index usage", "Use proper data types in comparisons")
	}
	joins := len(reJoin.FindAllStringIndex(upper, -1))
	if joins >= 3 && !hasWhere {
		add("Multiple JOINs", fmt.Sprintf("%d JOINs without WHERE clause may be inefficient", joins), "Add WHERE clause to filter intermediate results")
	}
	if reLeadingWild.MatchString(upper) {
		add("Leading wildcard", "LIKE with leading % prevents index usage", "Use full-text search or avoid leading wildcards")
	}
	if reDistinct.MatchString(upper) && reOrderBy.MatchString(upper) {
		add("DISTINCT with ORDER BY", "DISTINCT with ORDER BY requires additional sorting", "Ensure ORDER BY columns are in SELECT list")
	}

	return Review{Query: sqlText, Issues: issues, Complexity: ComplexityOf(sqlText)}
}

// ComplexityOf scores a statement from 0 to 100 by counting structural features.
func ComplexityOf(sqlText string) Complexity {
	upper := strings.ToUpper(sqlText)
	c := Complexity{
		JoinCount:      len(reJoin.FindAllStringIndex(upper, -1)),
		SubqueryCount:  max(len(reSelect.FindAllStringIndex(upper, -1))-1, 0),
		AggregateCount: len(reAggregate.FindAllStringIndex(upper, -1)),
		HasGroupBy:     reGroupBy.MatchString(upper),
		HasHaving:      reHaving.MatchString(upper),
		HasOrderBy:     reOrderBy.MatchString(upper),
		HasDistinct:    reDistinct.MatchString(upper),
	}
	score := min(c.JoinCount*10, 30) + min(c.SubqueryCount*15, 30) + min(c.AggregateCount*5, 20)
	if c.HasGroupBy {
		score += 5
	}
	if c.HasHaving {
		score += 5
	}
	if c.HasOrderBy {
		score += 3
	}
	if c.HasDistinct {
		score += 2
	}
	c.Score = min(score, 100)
	switch {
	case c.Score < 20:
		c.Level = "Simple"
	case c.Score < 40:
		c.Level = "Moderate"
	case c.Score < 60:
		c.Level = "Complex"
	default:
		c.Level = "Very Complex"
	}
	return c
}
