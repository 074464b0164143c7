// Package executions persists execution results in a WAL so the per-rule
// history survives restarts.
package executions

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/pricewatch/internal/domain"
)

const (
	DefaultDir = "./wal/executions"

	segmentThreshold = 1000
	maxSegments      = 100
	dirPermissions   = 0o755

	executionKeyPrefix = "execution_"

	// historyCap bounds the per-rule history rebuilt by Replay, matching the
	// engine's in-memory cap.
	historyCap = 100
)

// WALStore journals execution results keyed by rule ID.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.Mutex
}

// NewWALStore initializes a WAL-backed execution journal in dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure WAL directory %s", dir)
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "execution_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init execution WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Append journals the execution result of the rule.
func (s *WALStore) Append(ruleID string, res domain.ExecutionResult) error {
	if s == nil || s.wal == nil {
		return errors.New("execution store is not initialized")
	}
	if ruleID == "" {
		return errors.New("rule ID is required")
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return errors.Wrap(err, "marshal execution result")
	}

	key := fmt.Sprintf("%s%s", executionKeyPrefix, ruleID)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// Replay rebuilds the per-rule execution histories from the journal, keeping
// only the most recent entries up to the history cap.
func (s *WALStore) Replay() (map[string][]domain.ExecutionResult, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("execution store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := make(map[string][]domain.ExecutionResult)
	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, executionKeyPrefix) {
			continue
		}
		ruleID := strings.TrimPrefix(msg.Key, executionKeyPrefix)

		var res domain.ExecutionResult
		if err := json.Unmarshal(msg.Value, &res); err != nil {
			return nil, errors.Wrapf(err, "decode execution result for rule %s", ruleID)
		}

		results := append(history[ruleID], res)
		if len(results) > historyCap {
			results = results[len(results)-historyCap:]
		}
		history[ruleID] = results
	}

	return history, nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("execution store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
