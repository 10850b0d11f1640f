// Package copycat flags display names that impersonate protected members.
//
// The protected pool is built from the usernames and nicknames of members in
// configured roles plus a list of always-protected words. It is loaded once
// when the bot connects and is not refreshed when role membership changes.
package copycat

import (
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/guilhermelawless/nano-discord-bot/internal/domain"
	"github.com/guilhermelawless/nano-discord-bot/internal/metrics"
)

// lengthSlack is how many characters a name may differ from a protected
// target and still be compared against it.
const lengthSlack = 2

// Target is a protected member as read from the community.
type Target struct {
	MemberID      string
	Username      string
	Nickname      string
	Discriminator string
}

type candidate struct {
	name          string
	folded        string
	runes         int
	discriminator string
}

type pool struct {
	targets []candidate
	words   []candidate
	ids     map[string]struct{}
}

// Detector is safe for concurrent use. Load swaps the pool atomically.
type Detector struct {
	words []string
	pool  atomic.Pointer[pool]
}

func NewDetector(words []string) *Detector {
	d := &Detector{words: words}
	d.pool.Store(&pool{ids: map[string]struct{}{}})
	return d
}

// Load replaces the protected pool. Each target contributes its username and,
// when set, its nickname.
func (d *Detector) Load(targets []Target) {
	p := &pool{ids: make(map[string]struct{}, len(targets))}
	for _, t := range targets {
		p.ids[t.MemberID] = struct{}{}
		for _, name := range []string{t.Username, t.Nickname} {
			if name == "" {
				continue
			}
			p.targets = append(p.targets, newCandidate(name, t.Discriminator))
		}
	}
	for _, w := range d.words {
		if w = stripSpace(w); w != "" {
			p.words = append(p.words, newCandidate(w, ""))
		}
	}

	d.pool.Store(p)
	metrics.CopycatTargets.Set(float64(len(p.targets)))
}

func newCandidate(name, discriminator string) candidate {
	name = stripSpace(name)
	return candidate{
		name:          name,
		folded:        fold(name),
		runes:         utf8.RuneCountInString(name),
		discriminator: normalizeDiscriminator(discriminator),
	}
}

// Size returns the number of protected target names.
func (d *Detector) Size() int {
	return len(d.pool.Load().targets)
}

// IsTarget reports whether memberID is one of the protected members.
func (d *Detector) IsTarget(memberID string) bool {
	_, ok := d.pool.Load().ids[memberID]
	return ok
}

// Detect returns the strongest verdict for name against the protected pool.
// Words are always compared; targets only when their length is within
// lengthSlack of name. A matching target with the same known discriminator
// escalates the verdict.
func (d *Detector) Detect(name, discriminator string) domain.Verdict {
	p := d.pool.Load()
	if len(p.targets) == 0 || name == "" {
		return domain.VerdictNone
	}

	name = stripSpace(name)
	size := utf8.RuneCountInString(name)
	discriminator = normalizeDiscriminator(discriminator)

	candidates := make([]candidate, 0, len(p.words)+len(p.targets))
	candidates = append(candidates, p.words...)
	for _, t := range p.targets {
		if abs(size-t.runes) <= lengthSlack {
			candidates = append(candidates, t)
		}
	}

	verdict := domain.VerdictNone
	for _, match := range search(name, candidates) {
		verdict = max(verdict, domain.VerdictNameMatch)
		if discriminator != "" && match.discriminator == discriminator {
			verdict = domain.VerdictNameAndDiscriminatorMatch
			break
		}
	}

	metrics.CopycatChecksTotal.WithLabelValues(verdict.String()).Inc()
	return verdict
}

// search returns every candidate whose skeleton occurs in the skeleton of name.
func search(name string, candidates []candidate) []candidate {
	folded := fold(name)
	var matches []candidate
	for _, c := range candidates {
		if c.folded != "" && strings.Contains(folded, c.folded) {
			matches = append(matches, c)
		}
	}
	return matches
}

// normalizeDiscriminator maps the platform's "no discriminator" forms to "".
func normalizeDiscriminator(d string) string {
	if d == "0" || d == "0000" {
		return ""
	}
	return d
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
