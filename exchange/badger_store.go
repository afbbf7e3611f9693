package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"exchangeflow/registry"
)

// BadgerRepository implements Repository on an embedded Badger database, for
// nodes that run without PostgreSQL.
type BadgerRepository struct {
	db *badger.DB
}

// OpenBadgerRepository opens (or creates) the database under path.
func OpenBadgerRepository(path string) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(filepath.Clean(path))
	opts.Logger = nil
	opts = opts.WithValueLogFileSize(1 << 24)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("exchange: open badger: %w", err)
	}
	return &BadgerRepository{db: db}, nil
}

func (r *BadgerRepository) Close() error {
	return r.db.Close()
}

const badgerKeyPrefix = "exchange:"

func exchangeKey(id string) []byte {
	return []byte(badgerKeyPrefix + id)
}

// badgerDocument is the JSON value stored per exchange.
type badgerDocument struct {
	ID               string                  `json:"id"`
	ProviderEndpoint string                  `json:"providerEndpoint,omitempty"`
	ConsumerEndpoint string                  `json:"consumerEndpoint,omitempty"`
	Resources        []storedResource        `json:"resources"`
	PurposeID        string                  `json:"purposeId"`
	Contract         string                  `json:"contract"`
	Status           Status                  `json:"status"`
	ProviderParams   registry.Params         `json:"providerParams"`
	DataProcessing   registry.DataProcessing `json:"dataProcessing"`
	Payload          *string                 `json:"payload,omitempty"`
	CreatedAt        time.Time               `json:"createdAt"`
	UpdatedAt        time.Time               `json:"updatedAt"`
}

func toDocument(d DataExchange) badgerDocument {
	params := d.ProviderParams
	if params == nil {
		params = registry.Params{}
	}
	return badgerDocument{
		ID:               d.ID,
		ProviderEndpoint: d.ProviderEndpoint,
		ConsumerEndpoint: d.ConsumerEndpoint,
		Resources:        toStoredResources(d.Resources),
		PurposeID:        d.PurposeID,
		Contract:         d.Contract,
		Status:           d.Status,
		ProviderParams:   params,
		DataProcessing:   d.DataProcessing,
		Payload:          d.Payload,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func (doc badgerDocument) exchange() DataExchange {
	return DataExchange{
		ID:               doc.ID,
		ProviderEndpoint: doc.ProviderEndpoint,
		ConsumerEndpoint: doc.ConsumerEndpoint,
		Resources:        fromStoredResources(doc.Resources),
		PurposeID:        doc.PurposeID,
		Contract:         doc.Contract,
		Status:           doc.Status,
		ProviderParams:   doc.ProviderParams,
		DataProcessing:   doc.DataProcessing,
		Payload:          doc.Payload,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
}

func (r *BadgerRepository) Create(ctx context.Context, d DataExchange) (DataExchange, error) {
	if d.ID == "" {
		return DataExchange{}, fmt.Errorf("exchange: missing id")
	}
	if (d.ProviderEndpoint == "") == (d.ConsumerEndpoint == "") {
		return DataExchange{}, fmt.Errorf("exchange: exactly one counterpart endpoint required")
	}

	doc := toDocument(d)
	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(exchangeKey(d.ID)); err == nil {
			return fmt.Errorf("exchange: duplicate id %s", d.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		return txn.Set(exchangeKey(d.ID), data)
	})
	if err != nil {
		return DataExchange{}, fmt.Errorf("exchange: insert: %w", err)
	}
	return doc.exchange(), nil
}

func (r *BadgerRepository) GetByID(ctx context.Context, id string) (DataExchange, error) {
	var doc badgerDocument
	err := r.db.View(func(txn *badger.Txn) error {
		return readDocument(txn, id, &doc)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DataExchange{}, ErrNotFound
		}
		return DataExchange{}, fmt.Errorf("exchange: get by id: %w", err)
	}
	return doc.exchange(), nil
}

func (r *BadgerRepository) List(ctx context.Context) ([]DataExchange, error) {
	out := []DataExchange{}
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(badgerKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var doc badgerDocument
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &doc)
			}); err != nil {
				return err
			}
			out = append(out, doc.exchange())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("exchange: list: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// badgerUpdateAttempts bounds the retries of a conflicting read-modify-write.
const badgerUpdateAttempts = 128

// Update applies the patch inside one read-write transaction. Badger aborts
// the losing side of concurrent writes with ErrConflict; the update is then
// replayed on the fresh value so the last writer wins.
func (r *BadgerRepository) Update(ctx context.Context, id string, patch Patch) (DataExchange, error) {
	var (
		doc badgerDocument
		err error
	)
	for attempt := 0; attempt < badgerUpdateAttempts; attempt++ {
		err = r.db.Update(func(txn *badger.Txn) error {
			if err := readDocument(txn, id, &doc); err != nil {
				return err
			}
			d := doc.exchange()
			applyPatch(&d, patch)
			doc = toDocument(d)

			data, err := json.Marshal(doc)
			if err != nil {
				return err
			}
			return txn.Set(exchangeKey(id), data)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return DataExchange{}, fmt.Errorf("exchange: update: %w", ctxErr)
		}
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DataExchange{}, ErrNotFound
		}
		return DataExchange{}, fmt.Errorf("exchange: update: %w", err)
	}
	return doc.exchange(), nil
}

func readDocument(txn *badger.Txn, id string, doc *badgerDocument) error {
	item, err := txn.Get(exchangeKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return item.Value(func(v []byte) error {
		return json.Unmarshal(v, doc)
	})
}

// applyPatch merges the non-nil patch fields into d.
func applyPatch(d *DataExchange, patch Patch) {
	if patch.Status != nil {
		d.Status = *patch.Status
	}
	if patch.Payload != nil {
		payload := *patch.Payload
		d.Payload = &payload
	}
	if patch.Resources != nil {
		d.Resources = patch.Resources
	}
	if patch.PurposeID != nil {
		d.PurposeID = *patch.PurposeID
	}
	if patch.ProviderParams != nil {
		d.ProviderParams = patch.ProviderParams
	}
	if patch.DataProcessing != nil {
		d.DataProcessing = *patch.DataProcessing
	}
	if patch.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	} else {
		d.UpdatedAt = patch.UpdatedAt
	}
}
