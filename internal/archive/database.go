package archive

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/bill-itemizer/internal/claim"
	"github.com/zombor/bill-itemizer/internal/common"
)

const (
	runsBucketName      = "runs"
	billIndexBucketName = "bill_index"
)

// DB defines the interface for run archive operations
type DB interface {
	// SaveResult stores the result of a claim run, replacing any earlier run of the same claim
	SaveResult(result *claim.Result) (*Record, error)

	// GetResult retrieves the archived run of a claim
	GetResult(claimID string) (*Record, error)

	// ListResults returns every archived run, newest first
	ListResults() ([]*Record, error)

	// DeleteResult removes a claim run and its bill index entry
	DeleteResult(claimID string) error

	// FindByBillID looks up the run that produced a final bill
	FindByBillID(billID string) (*Record, error)

	// Close closes the database connection
	Close() error
}

// Record is one archived claim run
type Record struct {
	Result     *claim.Result `json:"result"`
	ArchivedAt time.Time     `json:"archived_at"`
}

// BoltDB implements DB on top of a bbolt file
type BoltDB struct {
	db     *bbolt.DB
	clock  common.TimeSource
	logger *slog.Logger
}

// NewBoltDB opens (or creates) the archive at path
func NewBoltDB(path string, logger *slog.Logger) (*BoltDB, error) {
	return NewBoltDBWithDeps(path, common.SystemTime{}, logger)
}

// NewBoltDBWithDeps opens the archive with a custom clock for testing
func NewBoltDBWithDeps(path string, clock common.TimeSource, logger *slog.Logger) (*BoltDB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{runsBucketName, billIndexBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db, clock: clock, logger: logger}, nil
}

// SaveResult archives result under its claim id
func (b *BoltDB) SaveResult(result *claim.Result) (*Record, error) {
	if result == nil || result.ClaimID == "" {
		return nil, fmt.Errorf("archiving result: %w", claim.ErrMissingClaimID)
	}

	record := &Record{Result: result, ArchivedAt: b.clock.Now().UTC()}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		runs := tx.Bucket([]byte(runsBucketName))
		index := tx.Bucket([]byte(billIndexBucketName))

		if previous := runs.Get([]byte(result.ClaimID)); previous != nil {
			var old Record
			if err := json.Unmarshal(previous, &old); err == nil && old.Result != nil && old.Result.FinalBillID != "" {
				if err := index.Delete([]byte(old.Result.FinalBillID)); err != nil {
					return err
				}
			}
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}
		if err := runs.Put([]byte(result.ClaimID), data); err != nil {
			return err
		}
		if result.FinalBillID != "" {
			return index.Put([]byte(result.FinalBillID), []byte(result.ClaimID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.logger.Debug("archived claim run", "claim_id", result.ClaimID, "status", result.Status)
	return record, nil
}

// GetResult retrieves a run by claim id
func (b *BoltDB) GetResult(claimID string) (*Record, error) {
	var record *Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		record, err = getRecord(tx, claimID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListResults returns all runs ordered by archive time, newest first
func (b *BoltDB) ListResults() ([]*Record, error) {
	records := make([]*Record, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(runsBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var record Record
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling record %s: %w", k, err)
			}
			records = append(records, &record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ArchivedAt.After(records[j].ArchivedAt)
	})
	return records, nil
}

// DeleteResult removes a run. Deleting an unknown claim is not an error.
func (b *BoltDB) DeleteResult(claimID string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		record, err := getRecord(tx, claimID)
		if err != nil {
			return nil
		}
		if record.Result.FinalBillID != "" {
			if err := tx.Bucket([]byte(billIndexBucketName)).Delete([]byte(record.Result.FinalBillID)); err != nil {
				return err
			}
		}
		return tx.Bucket([]byte(runsBucketName)).Delete([]byte(claimID))
	})
}

// FindByBillID resolves a final bill id to its archived run
func (b *BoltDB) FindByBillID(billID string) (*Record, error) {
	var record *Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		claimID := tx.Bucket([]byte(billIndexBucketName)).Get([]byte(billID))
		if claimID == nil {
			return fmt.Errorf("bill %s: %w", billID, common.ErrNotFound)
		}
		var err error
		record, err = getRecord(tx, string(claimID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

func getRecord(tx *bbolt.Tx, claimID string) (*Record, error) {
	data := tx.Bucket([]byte(runsBucketName)).Get([]byte(claimID))
	if data == nil {
		return nil, fmt.Errorf("claim %s: %w", claimID, common.ErrNotFound)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshaling record: %w", err)
	}
	if record.Result == nil {
		return nil, fmt.Errorf("claim %s: empty record", claimID)
	}
	return &record, nil
}
