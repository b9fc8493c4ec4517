package engine

import (
	"github.com/goplus/llpm/internal/deps"
	"github.com/goplus/llpm/internal/errs"
	"github.com/goplus/llpm/internal/graph"
	"github.com/goplus/llpm/internal/loader"
	"github.com/goplus/llpm/internal/profile"
	"github.com/goplus/llpm/internal/resolver"
)

// session is the state of one request: its validated profiles and a
// resolver whose remote lookups are shared by the whole expansion.
type session struct {
	req      *Request
	loader   *loader.Loader
	host     *profile.Profile
	build    *profile.Profile
	resolver *resolver.Resolver
	builder  *deps.Builder
}

func (e *Engine) newSession(req *Request) (*session, error) {
	host, build := profile.Pair(req.Host, req.Build)
	for _, p := range []*profile.Profile{host, build} {
		if err := p.Validate(e.loader.Schema()); err != nil {
			return nil, errs.Wrap(errs.InvalidConfig, "", err)
		}
	}
	r := resolver.New(e.cache, e.loader, e.remotes,
		resolver.WithUpdate(req.Update),
		resolver.WithLockfile(req.Lockfile),
		resolver.WithPrereleases(e.cfg.ResolvePrereleases),
	)
	return &session{
		req:      req,
		loader:   e.loader,
		host:     host,
		build:    build,
		resolver: r,
		builder:  deps.New(e.loader, r, host, build),
	}, nil
}

// root loads the consumer recipe of the request, or a virtual root
// carrying its requirements.
func (s *session) root() (*graph.Node, error) {
	if s.req.Path != "" {
		if len(s.req.Requires) > 0 || len(s.req.ToolRequires) > 0 {
			return nil, errs.New(errs.InvalidConfig, s.req.Path, "a consumer recipe and --requires are mutually exclusive")
		}
		return s.loader.LoadConsumer(s.req.Path, s.host)
	}
	if len(s.req.Requires) == 0 && len(s.req.ToolRequires) == 0 {
		return nil, errs.New(errs.InvalidConfig, "", "nothing to install: give a recipe or requirements")
	}
	return s.loader.LoadVirtual(s.req.Requires, s.req.ToolRequires, s.host)
}
