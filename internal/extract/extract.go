// Package extract converts transcribed free text into structured expense
// drafts. Extraction is deterministic and offline: it never fails, degrading
// to an amount of 0 and the Misc category with a lower confidence instead.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"ledgerlens/internal/expense"
)

const (
	// keywordConfidence applies when at least one category keyword matched.
	keywordConfidence = 0.9

	// fallbackConfidence applies when the category is a guess with no
	// keyword evidence.
	fallbackConfidence = 0.7
)

// amountPattern finds a currency-symbol-or-boundary-prefixed numeric token:
// 1-4 integer digits with an optional 1-2 digit decimal part using either
// separator. First match wins.
var amountPattern = regexp.MustCompile(`(?:\b|[$€£₹])(\d{1,4}(?:[.,]\d{1,2})?)`)

// currencyRules are evaluated in fixed priority order because symbols can be
// ambiguous; the first matching rule wins and USD is the default.
var currencyRules = []struct {
	code    string
	pattern *regexp.Regexp
}{
	{"EUR", regexp.MustCompile(`€|\beur\b|\beuro[s]?\b`)},
	{"GBP", regexp.MustCompile(`£|\bgbp\b|\bpound[s]?\b`)},
	{"INR", regexp.MustCompile(`₹|\binr\b|\brupee[s]?\b|\brs\b`)},
	{"USD", regexp.MustCompile(`[$]|\busd\b|\bdollar[s]?\b`)},
	{"CAD", regexp.MustCompile(`\bcad\b|c\$|canadian\s+dollar[s]?`)},
	{"AUD", regexp.MustCompile(`\baud\b|a\$|australian\s+dollar[s]?`)},
	{"JPY", regexp.MustCompile(`¥|￥|\bjpy\b|\byen\b`)},
	{"CNY", regexp.MustCompile(`\bcny\b|\brenminbi\b|\byuan\b`)},
}

// categoryKeywords maps each category to its keyword list, in the fixed
// category order. Ties keep the earlier category.
var categoryKeywords = []struct {
	category expense.Category
	keywords []string
}{
	{expense.CategoryFood, []string{"coffee", "lunch", "dinner", "breakfast", "meal", "restaurant", "pizza", "burger", "bar", "starbucks", "cafe"}},
	{expense.CategoryTransport, []string{"uber", "ola", "taxi", "bus", "train", "metro", "fuel", "gas", "petrol", "diesel", "parking"}},
	{expense.CategoryShopping, []string{"shopping", "store", "bought", "purchase", "amazon", "walmart", "target"}},
	{expense.CategoryEntertainment, []string{"movie", "cinema", "concert", "game", "netflix", "spotify"}},
	{expense.CategoryUtilities, []string{"internet", "wifi", "electric", "electricity", "water", "phone", "bill"}},
	{expense.CategoryHealth, []string{"doctor", "pharmacy", "medicine", "hospital", "gym", "yoga"}},
	{expense.CategoryRent, []string{"rent", "landlord", "lease"}},
	{expense.CategoryMisc, nil},
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Engine extracts expense drafts from text. Results are cached process-wide
// keyed by the exact input text; identical input returns the identical draft
// object without recomputation.
type Engine struct {
	mu         sync.Mutex
	cache      map[string]*expense.Draft
	timeSource TimeSource
}

// NewEngine creates an Engine with the real clock
func NewEngine() *Engine {
	return NewEngineWithTime(&defaultTimeSource{})
}

// NewEngineWithTime creates an Engine with a custom time source for testing
func NewEngineWithTime(timeSrc TimeSource) *Engine {
	return &Engine{
		cache:      make(map[string]*expense.Draft),
		timeSource: timeSrc,
	}
}

// Extract returns a best-effort draft for the given text. It never fails: an
// undetected amount is 0, an unmatched category is Misc, and low information
// content is signaled through the confidence field.
func (e *Engine) Extract(text string) *expense.Draft {
	e.mu.Lock()
	defer e.mu.Unlock()

	if draft, ok := e.cache[text]; ok {
		return draft
	}

	lower := strings.ToLower(text)

	amount := 0.0
	if m := amountPattern.FindStringSubmatch(lower); m != nil {
		parsed, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err == nil && parsed > 0 {
			amount = parsed
		}
	}

	currency := "USD"
	for _, rule := range currencyRules {
		if rule.pattern.MatchString(lower) {
			currency = rule.code
			break
		}
	}

	category := expense.CategoryMisc
	bestScore := 0
	for _, entry := range categoryKeywords {
		matches := 0
		for _, keyword := range entry.keywords {
			if strings.Contains(lower, keyword) {
				matches++
			}
		}
		if matches > bestScore {
			bestScore = matches
			category = entry.category
		}
	}

	confidence := fallbackConfidence
	if bestScore > 0 {
		confidence = keywordConfidence
	}

	draft := &expense.Draft{
		Amount:      amount,
		Currency:    currency,
		Description: strings.TrimSpace(text),
		Category:    category,
		Date:        e.timeSource.Now().Format("2006-01-02"),
		Confidence:  confidence,
	}
	e.cache[text] = draft
	return draft
}
