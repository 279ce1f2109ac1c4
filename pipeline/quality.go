package pipeline

import (
	"fmt"
	"regexp"
)

// qualityGuard runs caller-supplied regex checks over a provider response.
type qualityGuard struct {
	checks []*regexp.Regexp
}

// newQualityGuard compiles the caller's patterns. An invalid pattern is an
// input error.
func newQualityGuard(patterns []string) (*qualityGuard, error) {
	g := &qualityGuard{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: bad quality check %q: %v", ErrInvalidInput, p, err)
		}
		g.checks = append(g.checks, re)
	}
	return g, nil
}

func (g *qualityGuard) enabled() bool {
	return g != nil && len(g.checks) > 0
}

// evaluate returns the patterns that did not match the response.
func (g *qualityGuard) evaluate(text string) []string {
	var failures []string
	for _, re := range g.checks {
		if !re.MatchString(text) {
			failures = append(failures, re.String())
		}
	}
	return failures
}

// betterOf picks the better of two guarded attempts: passing beats failing,
// then fewer failures win, then the first attempt wins ties.
func betterOf(textA string, failsA []string, textB string, failsB []string) (string, []string) {
	if len(failsA) == 0 {
		return textA, nil
	}
	if len(failsB) == 0 {
		return textB, nil
	}
	if len(failsB) < len(failsA) {
		return textB, failsB
	}
	return textA, failsA
}
