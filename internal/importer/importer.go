// Package importer turns deck files from local directories and git
// repositories into new cards.
package importer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/lexicard/internal/domain"
	"github.com/conorfennell/lexicard/internal/gitsource"
	"github.com/conorfennell/lexicard/internal/knol"
	"github.com/conorfennell/lexicard/internal/parser"
	"github.com/conorfennell/lexicard/internal/scheduler"
)

const (
	TypeLocal = "local"
	TypeGit   = "git"
)

// Source is a place deck files are read from.
type Source struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// NewSource classifies path as a git URL or a local path.
func NewSource(path string) Source {
	return Source{Path: path, Type: SourceType(path)}
}

// SourceType returns TypeGit for repository URLs and TypeLocal otherwise.
func SourceType(path string) string {
	if strings.HasSuffix(path, ".git") ||
		strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "http://") {
		return TypeGit
	}
	return TypeLocal
}

// Report summarizes a Load.
type Report struct {
	Sources    int
	Files      int
	Cards      int
	Duplicates int
	Invalid    int
	Errors     []error

	// Complete lists the sources that were read without any error. Only
	// their cards can be judged missing.
	Complete []string
}

// Importer loads cards from deck sources.
type Importer struct {
	reposDir string
	clock    scheduler.Clock
	validate *validator.Validate
	syncRepo func(ctx context.Context, url, localPath string) error
}

// New returns an Importer that clones git sources under reposDir and stamps
// new cards with the time read from clock.
func New(reposDir string, clock scheduler.Clock) *Importer {
	if clock == nil {
		clock = scheduler.SystemClock
	}
	return &Importer{
		reposDir: reposDir,
		clock:    clock,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		syncRepo: func(ctx context.Context, url, localPath string) error {
			return gitsource.Sync(ctx, url, localPath, nil)
		},
	}
}

// Load reads every source and returns one new card per distinct word pair.
// Problems with single files or repositories are collected in the report and
// do not stop the load; only context cancellation does.
func (im *Importer) Load(ctx context.Context, paths []string) ([]domain.Card, Report, error) {
	l := im.newLoad()

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, *l.report, err
		}

		source := NewSource(path)
		l.report.Sources++
		l.source = source.Path
		slog.Info("Loading source", "type", source.Type, "path", source.Path)

		errs := len(l.report.Errors)
		if err := im.loadSource(ctx, l, source); err != nil {
			return nil, *l.report, err
		}
		if len(l.report.Errors) == errs {
			l.report.Complete = append(l.report.Complete, source.Path)
		}
	}

	return l.finish()
}

// LoadFS reads every deck file in fsys as a single source named name.
func (im *Importer) LoadFS(ctx context.Context, fsys fs.FS, name string) ([]domain.Card, Report, error) {
	l := im.newLoad()
	l.report.Sources = 1
	l.source = name
	slog.Info("Loading source", "type", "embedded", "path", name)

	if err := l.walkFS(ctx, fsys); err != nil {
		if ctx.Err() != nil {
			return nil, *l.report, ctx.Err()
		}
		l.fail(name, err)
	} else if len(l.report.Errors) == 0 {
		l.report.Complete = append(l.report.Complete, name)
	}

	return l.finish()
}

func (im *Importer) newLoad() *load {
	return &load{
		importer: im,
		report:   &Report{},
		seen:     make(map[string]bool),
	}
}

// loadSource syncs a git source if needed and walks its files. Only
// context cancellation is returned; everything else lands in the report.
func (im *Importer) loadSource(ctx context.Context, l *load, source Source) error {
	dir := source.Path
	if source.Type == TypeGit {
		localRepoPath, err := gitURLToLocalPath(im.reposDir, source.Path)
		if err != nil {
			l.fail(source.Path, err)
			return nil
		}
		if err := ensureDir(im.reposDir); err != nil {
			l.fail(source.Path, err)
			return nil
		}
		if err := im.syncRepo(ctx, source.Path, localRepoPath); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.fail(source.Path, err)
			return nil
		}
		dir = localRepoPath
	}

	if err := l.walk(ctx, dir); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.fail(dir, err)
	}
	return nil
}

// Orphans returns the IDs of cards in pool that came from a source the report
// read completely but that the load did not find again. Cards without a
// source are never orphans.
func Orphans(pool, loaded []domain.Card, report Report) []string {
	complete := make(map[string]bool, len(report.Complete))
	for _, path := range report.Complete {
		complete[path] = true
	}
	found := make(map[string]bool, len(loaded))
	for _, c := range loaded {
		found[c.ID] = true
	}

	var orphans []string
	for _, c := range pool {
		if c.Source == "" || !complete[c.Source] || found[c.ID] {
			continue
		}
		orphans = append(orphans, c.ID)
	}
	return orphans
}

// load is the state of a single Load call.
type load struct {
	importer *Importer
	report   *Report
	source   string
	seen     map[string]bool
	cards    []domain.Card
}

func (l *load) fail(path string, err error) {
	l.report.Errors = append(l.report.Errors, err)
	slog.Error("Error loading source", "path", path, "error", err)
}

func (l *load) finish() ([]domain.Card, Report, error) {
	report := *l.report
	report.Cards = len(l.cards)
	slog.Info("Import complete",
		"sources", report.Sources,
		"files", report.Files,
		"cards", report.Cards,
		"duplicates", report.Duplicates,
		"invalid", report.Invalid,
		"errors", len(report.Errors),
	)
	return l.cards, report, nil
}

func (l *load) walk(ctx context.Context, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !parser.Supported(path) {
			return nil
		}

		l.report.Files++
		entries, parseErr := parser.ParseFile(path)
		l.addAll(path, entries, parseErr)
		return nil
	})
}

func (l *load) walkFS(ctx context.Context, fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !parser.Supported(path) {
			return nil
		}

		l.report.Files++
		f, err := fsys.Open(path)
		if err != nil {
			l.addAll(path, nil, err)
			return nil
		}
		defer f.Close()
		entries, parseErr := parser.ParseNamed(path, f)
		l.addAll(path, entries, parseErr)
		return nil
	})
}

func (l *load) addAll(path string, entries []parser.Entry, parseErr error) {
	if parseErr != nil {
		l.report.Errors = append(l.report.Errors, fmt.Errorf("parsing %s: %w", path, parseErr))
		slog.Warn("Failed to parse deck file", "path", path, "error", parseErr)
		return
	}
	for _, entry := range entries {
		l.add(path, entry)
	}
}

func (l *load) add(path string, entry parser.Entry) {
	if err := l.importer.validate.Struct(entry); err != nil {
		l.report.Invalid++
		slog.Warn("Skipping invalid entry", "path", path, "front", entry.Front, "error", err)
		return
	}

	id := knol.ID(entry.Front, entry.Back)
	if l.seen[id] {
		l.report.Duplicates++
		slog.Debug("Duplicate entry, skipping", "path", path, "id", id)
		return
	}
	l.seen[id] = true

	card := domain.NewCard(id, entry.Front, entry.Back, l.importer.clock.Now())
	card.Category = entry.Category
	card.Source = l.source
	l.cards = append(l.cards, card)
}

// gitURLToLocalPath maps a repository URL to its clone directory under
// baseDir/<host>. URLs whose path would leave that directory are rejected.
func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	host, repoPath, err := splitGitURL(repoURL)
	if err != nil {
		return "", err
	}
	repoPath = strings.TrimSuffix(strings.Trim(repoPath, "/"), ".git")
	if host == "" || repoPath == "" {
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	hostDir := filepath.Join(baseDir, host)
	local := filepath.Join(hostDir, repoPath)
	if !within(baseDir, hostDir) || !within(hostDir, local) {
		return "", fmt.Errorf("git URL %s resolves outside %s", repoURL, baseDir)
	}
	return local, nil
}

// splitGitURL returns the host and repository path of an http(s) URL or an
// scp-like user@host:path address.
func splitGitURL(repoURL string) (host, repoPath string, err error) {
	if u, perr := url.Parse(repoURL); perr == nil && (u.Scheme == "https" || u.Scheme == "http") {
		return u.Host, u.Path, nil
	}
	if user, rest, ok := strings.Cut(repoURL, "@"); ok && user != "" {
		if host, repoPath, ok := strings.Cut(rest, ":"); ok {
			return host, repoPath, nil
		}
	}
	return "", "", fmt.Errorf("could not parse git URL: %s", repoURL)
}

// within reports whether path is strictly below dir.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ensureDir creates the repositories directory before the first clone.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create repos directory %s: %w", dir, err)
	}
	return nil
}
