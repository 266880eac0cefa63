package store

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/wirl-lang/wirl/common/logger"
	"github.com/wirl-lang/wirl/internal/compile"
	"github.com/wirl-lang/wirl/internal/wirl/parser"
)

// Template is one compiled WIRL workflow plus the path it was loaded from
// (spec.md §6 GET /workflow-templates: `{id, name, path}`).
type Template struct {
	Name     string
	Path     string
	Workflow *compile.Workflow
}

// manifest is the optional `definitions.yaml` SPEC_FULL.md §C allows next
// to a directory of `.wirl` files, listing which ones are discoverable
// templates (rather than shared fragments or drafts).
type manifest struct {
	Templates []string `yaml:"templates"`
}

// TemplateStore discovers, compiles, and caches workflows from a directory
// of `.wirl` files, keyed by template name; each compiled workflow carries
// its `(template_name, source_hash)` identity (spec.md §3). It watches the directory with fsnotify so an edited file is
// recompiled without a service restart (SPEC_FULL.md §D).
type TemplateStore struct {
	dir string
	log *logger.Logger

	mu        sync.RWMutex
	byName    map[string]*Template
	watcher   *fsnotify.Watcher
}

// NewTemplateStore scans dir for `*.wirl` files, compiles each, and starts
// watching for changes. If dir contains a `definitions.yaml`, only the
// files it lists are loaded; otherwise every `*.wirl` file is a template.
// A template is named by its `workflow NAME` declaration.
func NewTemplateStore(dir string, log *logger.Logger) (*TemplateStore, error) {
	s := &TemplateStore{dir: dir, log: log, byName: map[string]*Template{}}
	if err := s.reload(); err != nil {
		return nil, err
	}
	if err := s.watch(); err != nil {
		log.Warn("template hot-reload disabled", "error", err)
	}
	return s, nil
}

func (s *TemplateStore) discoverFiles() ([]string, error) {
	manifestPath := filepath.Join(s.dir, "definitions.yaml")
	if b, err := os.ReadFile(manifestPath); err == nil {
		var m manifest
		if err := yaml.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("parse definitions.yaml: %w", err)
		}
		files := make([]string, len(m.Templates))
		for i, name := range m.Templates {
			files[i] = filepath.Join(s.dir, name)
		}
		return files, nil
	}

	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read workflow definitions dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".wirl") {
			files = append(files, filepath.Join(s.dir, e.Name()))
		}
	}
	return files, nil
}

// reload recompiles every discoverable template and atomically swaps the
// cache. A file that fails to parse/compile is logged and skipped, leaving
// any previously-good cached version in place.
func (s *TemplateStore) reload() error {
	files, err := s.discoverFiles()
	if err != nil {
		return err
	}

	next := map[string]*Template{}
	for _, path := range files {
		tpl, err := s.compileFile(path)
		if err != nil {
			s.log.Error("failed to load workflow template", "path", path, "error", err)
			s.mu.RLock()
			for _, prev := range s.byName {
				if prev.Path == path {
					next[prev.Name] = prev
					break
				}
			}
			s.mu.RUnlock()
			continue
		}
		next[tpl.Name] = tpl
	}

	s.mu.Lock()
	s.byName = next
	s.mu.Unlock()
	return nil
}

func templateNameOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (s *TemplateStore) compileFile(path string) (*Template, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	ast, err := parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	name := ast.Name
	if name == "" {
		name = templateNameOf(path)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(src))
	wf, err := compile.Compile(ast, name, hash)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	return &Template{Name: name, Path: path, Workflow: wf}, nil
}

func (s *TemplateStore) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}
	s.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(ev.Name, ".wirl") && !strings.HasSuffix(ev.Name, ".yaml") {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.reload(); err != nil {
					s.log.Error("template reload failed", "error", err)
				} else {
					s.log.Info("reloaded workflow templates", "trigger", ev.Name)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Error("template watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Close stops the filesystem watcher.
func (s *TemplateStore) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// ByName returns the currently cached compiled workflow for a template, or
// (nil, false) if unknown.
func (s *TemplateStore) ByName(name string) (*Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byName[name]
	return t, ok
}

// List returns every cached template (spec.md §6 GET /workflow-templates).
func (s *TemplateStore) List() []*Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Template, 0, len(s.byName))
	for _, t := range s.byName {
		out = append(out, t)
	}
	return out
}
