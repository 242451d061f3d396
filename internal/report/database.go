package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const (
	recordsBucket = "records"
	storesBucket  = "stores"
	adminsBucket  = "admins"
)

// ErrNotFound is returned when a record, store or admin does not exist
var ErrNotFound = errors.New("not found")

// DB defines the interface for database operations
type DB interface {
	// SaveRecord saves a record to the database
	SaveRecord(record *Record) error

	// GetRecord retrieves a record by ID
	GetRecord(id string) (*Record, error)

	// ListRecords returns all records
	ListRecords() ([]*Record, error)

	// DeleteRecord removes a record from the database
	DeleteRecord(id string) error

	// SaveStore saves a store to the database
	SaveStore(store *Store) error

	// GetStore retrieves a store by ID
	GetStore(id string) (*Store, error)

	// ListStores returns all stores
	ListStores() ([]*Store, error)

	// DeleteStore removes a store from the database
	DeleteStore(id string) error

	// SaveAdmin saves an admin, keyed by lower-cased username
	SaveAdmin(admin *Admin) error

	// GetAdmin retrieves an admin by username, ignoring case
	GetAdmin(username string) (*Admin, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{recordsBucket, storesBucket, adminsBucket} {
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

	return &BoltDB{db: db}, nil
}

func put(db *bbolt.DB, bucket, key string, value any) error {
	return db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", bucket, err)
		}
		return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
	})
}

func get[T any](db *bbolt.DB, bucket, key string) (*T, error) {
	var value T
	err := db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s %s: %w", bucket, key, ErrNotFound)
		}
		return json.Unmarshal(data, &value)
	})
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func list[T any](db *bbolt.DB, bucket string) ([]*T, error) {
	values := make([]*T, 0)
	err := db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).ForEach(func(k, v []byte) error {
			var value T
			if err := json.Unmarshal(v, &value); err != nil {
				return fmt.Errorf("unmarshaling %s %s: %w", bucket, k, err)
			}
			values = append(values, &value)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func remove(db *bbolt.DB, bucket, key string) error {
	return db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b.Get([]byte(key)) == nil {
			return fmt.Errorf("%s %s: %w", bucket, key, ErrNotFound)
		}
		return b.Delete([]byte(key))
	})
}

// SaveRecord saves a record to the database
func (b *BoltDB) SaveRecord(record *Record) error {
	return put(b.db, recordsBucket, record.ID, record)
}

// GetRecord retrieves a record by ID
func (b *BoltDB) GetRecord(id string) (*Record, error) {
	return get[Record](b.db, recordsBucket, id)
}

// ListRecords returns all records in key order
func (b *BoltDB) ListRecords() ([]*Record, error) {
	return list[Record](b.db, recordsBucket)
}

// DeleteRecord removes a record from the database
func (b *BoltDB) DeleteRecord(id string) error {
	return remove(b.db, recordsBucket, id)
}

// SaveStore saves a store to the database
func (b *BoltDB) SaveStore(store *Store) error {
	return put(b.db, storesBucket, store.ID, store)
}

// GetStore retrieves a store by ID
func (b *BoltDB) GetStore(id string) (*Store, error) {
	return get[Store](b.db, storesBucket, id)
}

// ListStores returns all stores in key order
func (b *BoltDB) ListStores() ([]*Store, error) {
	return list[Store](b.db, storesBucket)
}

// DeleteStore removes a store from the database
func (b *BoltDB) DeleteStore(id string) error {
	return remove(b.db, storesBucket, id)
}

// SaveAdmin saves an admin, keyed by lower-cased username
func (b *BoltDB) SaveAdmin(admin *Admin) error {
	return put(b.db, adminsBucket, strings.ToLower(admin.Username), admin)
}

// GetAdmin retrieves an admin by username, ignoring case
func (b *BoltDB) GetAdmin(username string) (*Admin, error) {
	return get[Admin](b.db, adminsBucket, strings.ToLower(username))
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
