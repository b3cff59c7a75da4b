// Package splitter keeps encoded status fragments under a size budget.
//
// A payload that does not fit is first packed application by application. An
// application that is still too large on its own is cut into numbered parts
// ("Billing [Part 1]", "Billing [Part 2]", ...) along block boundaries of its
// HTML content.
package splitter

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"statuslink/internal/codec"
	"statuslink/internal/domain"
)

const (
	DefaultBudget        = 1800
	DefaultContentBudget = DefaultBudget - 100
)

// ErrEncode is returned when any fragment cannot be encoded. No partial
// output accompanies it.
var ErrEncode = errors.New("split failed")

// PartName is the application name used for the n-th part (1-based) of app.
func PartName(app string, n int) string {
	return fmt.Sprintf("%s [Part %d]", app, n)
}

type Options struct {
	Budget        int
	ContentBudget int
	Chunker       Chunker
}

type Splitter struct {
	budget        int
	contentBudget int
	chunker       Chunker
}

// Result lists the fragments in order. Oversized counts fragments that are
// still over budget because a single block could not be divided further.
type Result struct {
	Fragments []string
	Oversized int
}

func New(opts Options) *Splitter {
	s := &Splitter{
		budget:        opts.Budget,
		contentBudget: opts.ContentBudget,
		chunker:       opts.Chunker,
	}
	if s.budget <= 0 {
		s.budget = DefaultBudget
	}
	if s.contentBudget <= 0 || s.contentBudget >= s.budget {
		s.contentBudget = s.budget - (DefaultBudget - DefaultContentBudget)
		if s.contentBudget <= 0 {
			s.contentBudget = s.budget
		}
	}
	if s.chunker == nil {
		s.chunker = DOMChunker{}
	}
	return s
}

// SplitPayload splits p with the default chunker and a content budget derived
// from budget.
func SplitPayload(p domain.StatusPayload, budget int) ([]string, error) {
	res, err := New(Options{Budget: budget}).Split(p)
	if err != nil {
		return nil, err
	}
	return res.Fragments, nil
}

func (s *Splitter) Split(p domain.StatusPayload) (Result, error) {
	whole, err := s.encode(p, p.Apps)
	if err != nil {
		return Result{}, err
	}
	if len(whole) <= s.budget {
		return Result{Fragments: []string{whole}}, nil
	}

	groups, err := s.packApps(p)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, g := range groups {
		if len(g.fragment) <= s.budget {
			res.Fragments = append(res.Fragments, g.fragment)
			continue
		}
		// Packing only lets a group grow past budget when it holds one app.
		parts, oversized, err := s.splitApp(p, g.apps[0])
		if err != nil {
			return Result{}, err
		}
		if len(parts) == 0 {
			res.Fragments = append(res.Fragments, g.fragment)
			res.Oversized++
			continue
		}
		res.Fragments = append(res.Fragments, parts...)
		res.Oversized += oversized
	}

	if res.Oversized > 0 {
		log.Printf("split name=%q date=%s fragments=%d oversized=%d budget=%d", p.Name, p.Date, len(res.Fragments), res.Oversized, s.budget)
	}
	return res, nil
}

type group struct {
	apps     []domain.AppEntry
	fragment string
}

// packApps greedily groups consecutive applications while their encoding stays
// within budget.
func (s *Splitter) packApps(p domain.StatusPayload) ([]group, error) {
	var (
		groups []group
		acc    []domain.AppEntry
		accEnc string
	)
	for _, app := range p.Apps {
		test := append(acc[:len(acc):len(acc)], app)
		enc, err := s.encode(p, test)
		if err != nil {
			return nil, err
		}
		if len(enc) > s.budget && len(acc) > 0 {
			groups = append(groups, group{apps: acc, fragment: accEnc})
			acc = []domain.AppEntry{app}
			accEnc, err = s.encode(p, acc)
			if err != nil {
				return nil, err
			}
			continue
		}
		acc = test
		accEnc = enc
	}
	if len(acc) > 0 {
		groups = append(groups, group{apps: acc, fragment: accEnc})
	}
	return groups, nil
}

// splitApp packs the content chunks of one application into numbered parts,
// measured against the content budget.
func (s *Splitter) splitApp(p domain.StatusPayload, app domain.AppEntry) ([]string, int, error) {
	var (
		parts     []string
		oversized int
		acc       string
	)
	emit := func(content string) error {
		entry := domain.AppEntry{App: PartName(app.App, len(parts)+1), Content: strings.TrimSpace(content)}
		enc, err := s.encode(p, []domain.AppEntry{entry})
		if err != nil {
			return err
		}
		if len(enc) > s.budget {
			oversized++
		}
		parts = append(parts, enc)
		return nil
	}

	for _, chunk := range s.chunker.Chunk(app.Content) {
		test, err := s.encode(p, []domain.AppEntry{{App: app.App, Content: acc + chunk}})
		if err != nil {
			return nil, 0, err
		}
		if len(test) > s.contentBudget {
			if strings.TrimSpace(acc) != "" {
				if err := emit(acc); err != nil {
					return nil, 0, err
				}
			}
			acc = chunk
			continue
		}
		acc += chunk
	}
	if strings.TrimSpace(acc) != "" {
		if err := emit(acc); err != nil {
			return nil, 0, err
		}
	}
	return parts, oversized, nil
}

func (s *Splitter) encode(p domain.StatusPayload, apps []domain.AppEntry) (string, error) {
	out := p
	out.Apps = apps
	enc, err := codec.Encode(out)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return enc, nil
}

// SplitBatch packs several payloads into as few batch fragments as fit the
// budget, keeping their order. A payload too large to travel in a batch on its
// own is split with Split and its fragments take its place.
func (s *Splitter) SplitBatch(ps []domain.StatusPayload) ([]string, error) {
	var (
		out    []string
		acc    []domain.StatusPayload
		accEnc string
	)
	flush := func() {
		if len(acc) > 0 {
			out = append(out, accEnc)
		}
		acc, accEnc = nil, ""
	}

	for _, p := range ps {
		test := append(acc[:len(acc):len(acc)], p)
		enc, err := codec.EncodeBatch(test)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEncode, err)
		}
		if len(enc) <= s.budget {
			acc, accEnc = test, enc
			continue
		}
		flush()

		alone, err := codec.EncodeBatch([]domain.StatusPayload{p})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEncode, err)
		}
		if len(alone) <= s.budget {
			acc, accEnc = []domain.StatusPayload{p}, alone
			continue
		}
		res, err := s.Split(p)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Fragments...)
	}
	flush()
	return out, nil
}

// SplitBatch is the package-level form of Splitter.SplitBatch.
func SplitBatch(ps []domain.StatusPayload, budget int) ([]string, error) {
	return New(Options{Budget: budget}).SplitBatch(ps)
}
