package auth

import (
	"errors"
	"fmt"
	"regexp"
)

var ErrChallengeFailed = errors.New("challenge response rejected")

// Challenge is one keyboard-interactive prompt. An answer passes only when
// Response matches all of it.
type Challenge struct {
	Query    string
	Response *regexp.Regexp
	Echo     bool
}

// NewChallenge compiles pattern anchored at both ends.
func NewChallenge(query, pattern string, echo bool) (Challenge, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return Challenge{}, fmt.Errorf("challenge %q: %w", query, err)
	}
	return Challenge{Query: query, Response: re, Echo: echo}, nil
}

// Prompts splits challenges into the parallel slices ssh expects.
func Prompts(challenges []Challenge) (questions []string, echos []bool) {
	for _, c := range challenges {
		questions = append(questions, c.Query)
		echos = append(echos, c.Echo)
	}
	return questions, echos
}

// Verify checks answers against challenges in order.
func Verify(challenges []Challenge, answers []string) error {
	if len(answers) != len(challenges) {
		return fmt.Errorf("%w: got %d answers for %d prompts", ErrChallengeFailed, len(answers), len(challenges))
	}
	for i, c := range challenges {
		if !c.Response.MatchString(answers[i]) {
			return fmt.Errorf("%w: prompt %d", ErrChallengeFailed, i)
		}
	}
	return nil
}
