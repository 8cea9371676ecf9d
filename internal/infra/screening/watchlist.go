// Package screening matches extracted entity names against a YAML watchlist
// that is reloaded when the file changes.
package screening

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/docrisk/internal/domain/document"
)

// Entry is one watchlisted party.
type Entry struct {
	Name      string   `yaml:"name"`
	Aliases   []string `yaml:"aliases"`
	Category  string   `yaml:"category"`   // pep | sanction | criminal
	RiskLevel string   `yaml:"risk_level"` // low | medium | high | critical
}

type file struct {
	Entries []Entry `yaml:"entries"`
}

// penalty per hit, by risk level, against a health score of 100
var penalty = map[document.Severity]float64{
	document.SeverityCritical: 60,
	document.SeverityHigh:     40,
	document.SeverityMedium:   20,
	document.SeverityLow:      10,
}

var categories = map[string]bool{"pep": true, "sanction": true, "criminal": true}

type key struct {
	entry int
	form  string
}

type list struct {
	entries []Entry
	keys    []key
}

// Watchlist implements document.Screener. The active list is swapped
// atomically, so Screen never blocks on a reload.
type Watchlist struct {
	path   string
	log    *slog.Logger
	active atomic.Pointer[list]
}

var _ document.Screener = (*Watchlist)(nil)

// Load reads the watchlist file.
func Load(path string, log *slog.Logger) (*Watchlist, error) {
	if log == nil {
		log = slog.Default()
	}
	w := &Watchlist{path: path, log: log}
	l, err := readList(path)
	if err != nil {
		return nil, err
	}
	w.active.Store(l)
	return w, nil
}

// Len is the number of entries currently loaded.
func (w *Watchlist) Len() int { return len(w.active.Load().entries) }

func readList(path string) (*list, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode watchlist: %w", err)
	}
	l := &list{entries: f.Entries}
	for i, e := range f.Entries {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("watchlist entry %d: empty name", i)
		}
		if !categories[strings.ToLower(e.Category)] {
			return nil, fmt.Errorf("watchlist entry %q: unknown category %q", e.Name, e.Category)
		}
		if _, err := document.ParseSeverity(e.RiskLevel); err != nil {
			return nil, fmt.Errorf("watchlist entry %q: %w", e.Name, err)
		}
		for _, n := range append([]string{e.Name}, e.Aliases...) {
			if k := normalize(n); k != "" {
				l.keys = append(l.keys, key{entry: i, form: k})
			}
		}
	}
	return l, nil
}

// Screen checks every candidate name. Each entry is reported at most once
// per candidate.
func (w *Watchlist) Screen(ctx context.Context, names []string) (document.ScreeningResult, error) {
	l := w.active.Load()
	res := document.ScreeningResult{Score: 100, Hits: []document.ScreeningHit{}}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return document.ScreeningResult{}, err
		}
		cand := normalize(name)
		if cand == "" {
			continue
		}
		seen := map[int]bool{}
		for _, k := range l.keys {
			if seen[k.entry] || !matches(cand, k.form) {
				continue
			}
			seen[k.entry] = true
			e := l.entries[k.entry]
			sev, _ := document.ParseSeverity(e.RiskLevel)
			res.Score -= penalty[sev]
			res.Hits = append(res.Hits, document.ScreeningHit{
				Name:      name,
				Matched:   e.Name,
				Category:  strings.ToLower(e.Category),
				RiskLevel: string(sev),
			})
		}
	}
	res.Score = document.Clamp(res.Score)
	return res, nil
}

// matches is an exact match on the normalised form, or every token of the
// listed name present in the candidate regardless of order.
func matches(cand, listed string) bool {
	if cand == listed {
		return true
	}
	have := map[string]bool{}
	for _, t := range strings.Fields(cand) {
		have[t] = true
	}
	toks := strings.Fields(listed)
	if len(toks) < 2 {
		return false
	}
	for _, t := range toks {
		if !have[t] {
			return false
		}
	}
	return true
}

// normalize strips diacritics and punctuation and lower-cases.
func normalize(s string) string {
	// chains carry state, so one per call
	fold := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(fold, s)
	if err != nil {
		out = s
	}
	out = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, out)
	return strings.Join(strings.Fields(out), " ")
}

// Watch reloads the file on change until ctx ends. A file that fails to
// parse leaves the previous list active.
func (w *Watchlist) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watchlist watcher: %w", err)
	}
	// watch the directory so editors that replace the file are seen
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", w.path, err)
	}
	go w.loop(ctx, watcher)
	return nil
}

func (w *Watchlist) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, w.reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watchlist watcher error", "err", err)
		}
	}
}

func (w *Watchlist) reload() {
	l, err := readList(w.path)
	if err != nil {
		w.log.Error("watchlist reload failed, keeping previous list", "path", w.path, "err", err)
		return
	}
	w.active.Store(l)
	w.log.Info("watchlist reloaded", "path", w.path, "entries", len(l.entries))
}
