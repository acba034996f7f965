package exam

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/programme-lv/proctor/logger"
	"golang.org/x/sync/singleflight"
)

// Provider is the read-only source of truth for exam definitions.
type Provider interface {
	GetExam(ctx context.Context, examID string) (Exam, error)
}

// DirProvider reads <dir>/<examID>.toml on every call.
type DirProvider struct {
	dir string
}

func NewDirProvider(dir string) *DirProvider {
	return &DirProvider{dir: dir}
}

func (p *DirProvider) GetExam(ctx context.Context, examID string) (Exam, error) {
	if examID == "" || filepath.Base(examID) != examID {
		return Exam{}, newErrExamNotFound(examID)
	}
	path := filepath.Join(p.dir, examID+".toml")
	logger.FromContext(ctx).Debug("reading exam definition", "path", path)

	e, err := ReadTomlFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Exam{}, newErrExamNotFound(examID)
		}
		return Exam{}, err
	}
	if e.ID != examID {
		return Exam{}, newErrInvalidExamConfig(fmt.Sprintf("file %s declares exam id %q", filepath.Base(path), e.ID))
	}
	return e, nil
}

// ListExamIDs lists ids of every definition in the directory.
func (p *DirProvider) ListExamIDs() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list exam dir: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".toml" {
			continue
		}
		ids = append(ids, entry.Name()[:len(entry.Name())-len(".toml")])
	}
	return ids, nil
}

// StaticProvider serves definitions held in memory.
type StaticProvider struct {
	mu    sync.RWMutex
	exams map[string]Exam
}

func NewStaticProvider(exams ...Exam) *StaticProvider {
	p := &StaticProvider{exams: make(map[string]Exam)}
	for _, e := range exams {
		p.exams[e.ID] = e
	}
	return p
}

func (p *StaticProvider) Put(e Exam) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exams[e.ID] = e
}

func (p *StaticProvider) GetExam(ctx context.Context, examID string) (Exam, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.exams[examID]
	if !ok {
		return Exam{}, newErrExamNotFound(examID)
	}
	return e, nil
}

// CachedProvider memoizes another provider. Concurrent misses for the
// same exam collapse into a single upstream read.
type CachedProvider struct {
	upstream Provider
	cache    *cache.Cache
	sfGroup  singleflight.Group
}

func NewCachedProvider(upstream Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		upstream: upstream,
		cache:    cache.New(ttl, 2*ttl),
	}
}

func (p *CachedProvider) GetExam(ctx context.Context, examID string) (Exam, error) {
	if cached, found := p.cache.Get(examID); found {
		if e, ok := cached.(Exam); ok {
			return e, nil
		}
	}

	res, err, _ := p.sfGroup.Do(examID, func() (interface{}, error) {
		if cached, found := p.cache.Get(examID); found {
			if e, ok := cached.(Exam); ok {
				return e, nil
			}
		}
		e, err := p.upstream.GetExam(ctx, examID)
		if err != nil {
			return nil, err
		}
		p.cache.SetDefault(examID, e)
		return e, nil
	})
	if err != nil {
		return Exam{}, err
	}
	return res.(Exam), nil
}
