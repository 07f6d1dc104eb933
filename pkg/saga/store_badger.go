package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const (
	execKeyPrefix        = "saga:"
	execIndexStatePrefix = "saga:index:status:"
)

// BadgerExecutionStore stores execution projections in Badger.
type BadgerExecutionStore struct {
	db *badger.DB
}

// NewBadgerExecutionStore creates a Badger-backed execution store.
func NewBadgerExecutionStore(db *badger.DB) (*BadgerExecutionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db cannot be nil")
	}
	return &BadgerExecutionStore{db: db}, nil
}

// Save persists one execution at key "saga:{sagaID}" plus a status index.
func (s *BadgerExecutionStore) Save(ctx context.Context, exec *Execution) error {
	if exec == nil {
		return fmt.Errorf("saga execution cannot be nil")
	}
	data, err := json.Marshal(exec)
	if err != nil {
		return err
	}

	key := []byte(execDataKey(exec.SagaID))
	newIndexKey := []byte(execStatusIndexKey(exec.Status.String(), exec.SagaID))

	return s.db.Update(func(txn *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var oldStatus string
		item, err := txn.Get(key)
		if err == nil {
			var previous Execution
			if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &previous) }); err == nil {
				oldStatus = previous.Status.String()
			}
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}
		if err := txn.Set(newIndexKey, []byte{}); err != nil {
			return err
		}
		if oldStatus != "" && oldStatus != exec.Status.String() {
			_ = txn.Delete([]byte(execStatusIndexKey(oldStatus, exec.SagaID)))
		}
		return nil
	})
}

// Get loads one execution by saga id.
func (s *BadgerExecutionStore) Get(ctx context.Context, sagaID string) (*Execution, error) {
	var exec Execution
	err := s.db.View(func(txn *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		item, err := txn.Get([]byte(execDataKey(sagaID)))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrExecutionNotFound
			}
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &exec) })
	})
	if err != nil {
		return nil, err
	}
	return cloneExecution(&exec), nil
}

// List queries executions by status with pagination.
func (s *BadgerExecutionStore) List(ctx context.Context, filter ListFilter) ([]*Execution, int, error) {
	executions := make([]*Execution, 0)

	err := s.db.View(func(txn *badger.Txn) error {
		if filter.Status != "" {
			prefix := []byte(execStatusIndexPrefix(filter.Status))
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				key := string(it.Item().Key())
				sagaID := strings.TrimPrefix(key, execStatusIndexPrefix(filter.Status))
				exec, err := s.getInTxn(txn, sagaID)
				if err != nil {
					continue
				}
				executions = append(executions, exec)
			}
			return nil
		}

		prefix := []byte(execKeyPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			key := string(it.Item().Key())
			if strings.HasPrefix(key, execIndexStatePrefix) {
				continue
			}
			var exec Execution
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &exec) }); err != nil {
				continue
			}
			executions = append(executions, &exec)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	total := len(executions)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	limit := filter.Limit
	if limit < 0 {
		limit = 0
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	paged := make([]*Execution, 0, end-offset)
	for _, exec := range executions[offset:end] {
		paged = append(paged, cloneExecution(exec))
	}
	return paged, total, nil
}

// Delete removes one execution and its status index.
func (s *BadgerExecutionStore) Delete(ctx context.Context, sagaID string) error {
	key := []byte(execDataKey(sagaID))
	return s.db.Update(func(txn *badger.Txn) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		item, err := txn.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrExecutionNotFound
			}
			return err
		}

		var exec Execution
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &exec) }); err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		_ = txn.Delete([]byte(execStatusIndexKey(exec.Status.String(), sagaID)))
		return nil
	})
}

func (s *BadgerExecutionStore) getInTxn(txn *badger.Txn, sagaID string) (*Execution, error) {
	item, err := txn.Get([]byte(execDataKey(sagaID)))
	if err != nil {
		return nil, err
	}
	var exec Execution
	if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &exec) }); err != nil {
		return nil, err
	}
	return &exec, nil
}

func execDataKey(sagaID string) string {
	return execKeyPrefix + sagaID
}

func execStatusIndexPrefix(status string) string {
	return execIndexStatePrefix + status + ":"
}

func execStatusIndexKey(status, sagaID string) string {
	return execStatusIndexPrefix(status) + sagaID
}
