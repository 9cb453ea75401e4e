// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package escrow

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luxfi/cache"
	"github.com/luxfi/database"
	"github.com/luxfi/ids"
)

const projectCacheSize = 256

var (
	// Database prefixes for the escrow-side registries.
	projectPrefix = []byte("project:")
	backerPrefix  = []byte("backer:")
	artistPrefix  = []byte("artist:")
	weightPrefix  = []byte("vote_weight:")
	termsPrefix   = []byte("project_terms:")
	configKey     = []byte("config")

	ErrProjectNotFound = errors.New("project not found")
	ErrBackerNotFound  = errors.New("backer not found")
	ErrTermsNotFound   = errors.New("project terms not found")
)

// Store persists escrow records. Every record is addressed by a
// deterministic function of its logical key, so lookups never need an
// index. Callers serialize access; writes are assumed to run inside the
// VM's per-operation transaction.
type Store struct {
	db database.Database

	// Read cache over committed project records. Entries are evicted on
	// write so an aborted operation cannot leave stale data behind.
	projectCache *cache.LRU[ids.ID, *Project]
}

func NewStore(db database.Database) *Store {
	return &Store{
		db:           db,
		projectCache: &cache.LRU[ids.ID, *Project]{Size: projectCacheSize},
	}
}

func backerKey(project ids.ID, wallet ids.ShortID) []byte {
	key := make([]byte, 0, len(backerPrefix)+len(project)+len(wallet))
	key = append(key, backerPrefix...)
	key = append(key, project[:]...)
	return append(key, wallet[:]...)
}

func (s *Store) getJSON(key []byte, v any, notFound error) error {
	data, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return notFound
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("corrupt record: %w", err)
	}
	return nil
}

func (s *Store) putJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return s.db.Put(key, data)
}

func (s *Store) GetProject(projectID ids.ID) (*Project, error) {
	if p, ok := s.projectCache.Get(projectID); ok {
		cp := *p
		return &cp, nil
	}
	p := &Project{}
	if err := s.getJSON(append(projectPrefix, projectID[:]...), p, ErrProjectNotFound); err != nil {
		return nil, err
	}
	cp := *p
	s.projectCache.Put(projectID, &cp)
	return p, nil
}

func (s *Store) PutProject(projectID ids.ID, p *Project) error {
	s.projectCache.Evict(projectID)
	return s.putJSON(append(projectPrefix, projectID[:]...), p)
}

func (s *Store) GetBacker(project ids.ID, wallet ids.ShortID) (*Backer, error) {
	b := &Backer{}
	if err := s.getJSON(backerKey(project, wallet), b, ErrBackerNotFound); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) PutBacker(b *Backer) error {
	return s.putJSON(backerKey(b.Project, b.Wallet), b)
}

func (s *Store) GetArtistState(artist ids.ShortID) (*ArtistState, error) {
	st := &ArtistState{}
	err := s.getJSON(append(artistPrefix, artist[:]...), st, database.ErrNotFound)
	if errors.Is(err, database.ErrNotFound) {
		return &ArtistState{Artist: artist}, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Store) PutArtistState(st *ArtistState) error {
	return s.putJSON(append(artistPrefix, st.Artist[:]...), st)
}

// GetVoteWeight returns the project's quadratic weight accumulator; a
// missing record reads as zero.
func (s *Store) GetVoteWeight(project ids.ID) (uint64, error) {
	vw := &ProjectVoteWeight{}
	err := s.getJSON(append(weightPrefix, project[:]...), vw, database.ErrNotFound)
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return vw.TotalVoteWeight, nil
}

func (s *Store) PutVoteWeight(project ids.ID, weight uint64) error {
	return s.putJSON(append(weightPrefix, project[:]...), &ProjectVoteWeight{TotalVoteWeight: weight})
}

func (s *Store) GetTerms(project ids.ID) (*ProjectTerms, error) {
	terms := &ProjectTerms{}
	if err := s.getJSON(append(termsPrefix, project[:]...), terms, ErrTermsNotFound); err != nil {
		return nil, err
	}
	return terms, nil
}

func (s *Store) PutTerms(project ids.ID, terms *ProjectTerms) error {
	return s.putJSON(append(termsPrefix, project[:]...), terms)
}

func (s *Store) GetConfig() (*Config, error) {
	cfg := &Config{}
	if err := s.getJSON(configKey, cfg, ErrNotInitialized); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Store) HasConfig() (bool, error) {
	return s.db.Has(configKey)
}

func (s *Store) PutConfig(cfg *Config) error {
	return s.putJSON(configKey, cfg)
}
