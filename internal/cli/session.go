package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/calvinalkan/livequery/internal/config"
	"github.com/calvinalkan/livequery/pkg/livequery"
	"github.com/calvinalkan/livequery/pkg/sectioncache"
)

// session wires a store, a section cache and a controller for one command.
type session struct {
	o       *IO
	cfg     *config.Config
	store   backend
	cache   livequery.SectionCache
	ctrl    *livequery.Controller[Contact]
	printer *changePrinter
}

func openCache(cfg *config.Config) (livequery.SectionCache, error) {
	if cfg.CacheDirAbs == "" {
		return sectioncache.NewMemory(), nil
	}

	return sectioncache.NewFile(cfg.CacheDirAbs)
}

// openSession opens the configured store and performs the initial fetch.
func openSession(ctx context.Context, o *IO, cfg *config.Config) (*session, error) {
	store, err := openBackend(ctx, cfg.DBPathAbs)
	if err != nil {
		return nil, err
	}

	cache, err := openCache(cfg)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	s := &session{o: o, cfg: cfg, store: store, cache: cache, printer: &changePrinter{o: o}}

	s.ctrl, err = livequery.New[Contact](store, activeContacts(), livequery.Options{
		CacheName: cfg.CacheName,
		Cache:     cache,
		Mode:      cfg.Mode(),
		OnError:   func(err error) { o.ErrPrintln("error:", err) },
	})
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	err = s.ctrl.PerformFetch(ctx)
	if err != nil {
		return nil, errors.Join(err, s.close())
	}

	s.ctrl.SetObserver(s.printer)

	return s, nil
}

func (s *session) close() error {
	return errors.Join(s.ctrl.Close(), s.store.Close())
}

// resolve finds a contact by key, or by exact name among stored contacts.
func (s *session) resolve(ctx context.Context, ref string) (Contact, error) {
	c, ok, err := s.store.Get(ctx, ref)
	if err != nil {
		return Contact{}, err
	}

	if ok {
		return c, nil
	}

	spec := activeContacts()
	spec.Where = func(c Contact) (bool, error) { return c.Name == ref, nil }

	matches, err := s.store.Execute(ctx, spec)
	if err != nil {
		return Contact{}, err
	}

	switch len(matches) {
	case 0:
		return Contact{}, fmt.Errorf("no contact %q", ref)
	case 1:
		return matches[0], nil
	default:
		return Contact{}, fmt.Errorf("%d contacts named %q, use the key", len(matches), ref)
	}
}

// printSections writes the current result, one header per section.
func (s *session) printSections() {
	sections := s.ctrl.Sections()
	if len(sections) == 0 {
		s.o.Println("(no contacts)")

		return
	}

	for _, sec := range sections {
		s.o.Printf("%s [%s] %d\n", sec.Name(), sec.IndexTitle(), sec.NumberOfObjects())

		for _, c := range sec.Objects() {
			if c.Email != "" {
				s.o.Printf("  %s %s <%s>\n", c.Key, c.Name, c.Email)
			} else {
				s.o.Printf("  %s %s\n", c.Key, c.Name)
			}
		}
	}
}
