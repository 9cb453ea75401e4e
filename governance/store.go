// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package governance

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
)

var (
	proposalPrefix = []byte("proposal:")
	votePrefix     = []byte("vote:")
	attemptPrefix  = []byte("proposal_attempt:")
	configKey      = []byte("gov_config")

	ErrProposalNotFound = errors.New("proposal not found")
	ErrVoteNotFound     = errors.New("vote not found")
)

// Store persists governance records. Callers serialize access; writes run
// inside the VM's per-operation transaction.
type Store struct {
	db database.Database
}

func NewStore(db database.Database) *Store {
	return &Store{db: db}
}

func voteKey(proposal ids.ID, voter ids.ShortID) []byte {
	key := make([]byte, 0, len(votePrefix)+len(proposal)+len(voter))
	key = append(key, votePrefix...)
	key = append(key, proposal[:]...)
	return append(key, voter[:]...)
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

func (s *Store) GetProposal(proposalID ids.ID) (*Proposal, error) {
	p := &Proposal{}
	if err := s.getJSON(append(proposalPrefix, proposalID[:]...), p, ErrProposalNotFound); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) HasProposal(proposalID ids.ID) (bool, error) {
	return s.db.Has(append(proposalPrefix, proposalID[:]...))
}

func (s *Store) PutProposal(proposalID ids.ID, p *Proposal) error {
	return s.putJSON(append(proposalPrefix, proposalID[:]...), p)
}

func (s *Store) GetVote(proposal ids.ID, voter ids.ShortID) (*Vote, error) {
	v := &Vote{}
	if err := s.getJSON(voteKey(proposal, voter), v, ErrVoteNotFound); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) HasVote(proposal ids.ID, voter ids.ShortID) (bool, error) {
	return s.db.Has(voteKey(proposal, voter))
}

func (s *Store) PutVote(v *Vote) error {
	return s.putJSON(voteKey(v.Proposal, v.Voter), v)
}

// GetAttempt returns the project's proposal attempt counter; a missing
// record reads as zero.
func (s *Store) GetAttempt(project ids.ID) (uint64, error) {
	a := &ProposalAttempt{}
	err := s.getJSON(append(attemptPrefix, project[:]...), a, database.ErrNotFound)
	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return a.Attempt, nil
}

func (s *Store) PutAttempt(project ids.ID, attempt uint64) error {
	return s.putJSON(append(attemptPrefix, project[:]...), &ProposalAttempt{Attempt: attempt})
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
