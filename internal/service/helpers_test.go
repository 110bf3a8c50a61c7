package service

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/verdealab/ceres/internal/config"
	"github.com/verdealab/ceres/internal/domain/routing"
	"github.com/verdealab/ceres/internal/port/genprovider"
)

// fakeBackend is a scriptable in-memory provider backend.
type fakeBackend struct {
	name      routing.Provider
	reachable bool
	reply     func(prompt string) (string, error)
	calls     atomic.Int64
}

func (f *fakeBackend) Name() routing.Provider { return f.name }
func (f *fakeBackend) Reachable() bool        { return f.reachable }

func (f *fakeBackend) Generate(_ context.Context, req genprovider.GenerateRequest) (string, error) {
	f.calls.Add(1)
	return f.reply(req.Prompt)
}

func okBackend(name routing.Provider, text string) *fakeBackend {
	return &fakeBackend{
		name:      name,
		reachable: true,
		reply:     func(string) (string, error) { return text, nil },
	}
}

func downBackend(name routing.Provider) *fakeBackend {
	return &fakeBackend{
		name:  name,
		reply: func(string) (string, error) { return "", genprovider.ErrUnavailable },
	}
}

func failingBackend(name routing.Provider) *fakeBackend {
	return &fakeBackend{
		name:      name,
		reachable: true,
		reply:     func(string) (string, error) { return "", errors.New("upstream exploded") },
	}
}

func newTestRouter(recorder *Recorder, backends ...*fakeBackend) *Router {
	m := make(map[routing.Provider]genprovider.Backend, len(backends))
	for _, b := range backends {
		m[b.name] = b
	}
	r := NewRouter(m, recorder, nil, config.Defaults().Router)
	r.RefreshAvailability()
	r.Repair()
	return r
}
