package mongodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pilab-dev/teams-collab/storage"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// scopedEntryDocument keeps values as JSON text so arbitrary client
// payloads round-trip unchanged.
type scopedEntryDocument struct {
	Value   string `bson:"value"`
	Version string `bson:"version"`
}

type scopedItemDocument struct {
	Key       string                         `bson:"_id"`
	Values    map[string]scopedEntryDocument `bson:"values"`
	UpdatedAt time.Time                      `bson:"updated_at"`
}

// ScopedStorage implements storage.Storage with one document per storage key.
type ScopedStorage struct {
	collection *mongo.Collection
}

// NewScopedStorage creates a new ScopedStorage.
func NewScopedStorage(db *mongo.Database) *ScopedStorage {
	return &ScopedStorage{collection: db.Collection(ScopedValuesCollection)}
}

func (s *ScopedStorage) Read(ctx context.Context, keys []string) (map[string]*storage.StoreItem, error) {
	out := make(map[string]*storage.StoreItem, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	cursor, err := s.collection.Find(ctx, bson.M{"_id": bson.M{"$in": keys}})
	if err != nil {
		log.Error().Err(err).Strs("keys", keys).Msg("Error reading scoped values")
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []scopedItemDocument
	if err := cursor.All(ctx, &docs); err != nil {
		log.Error().Err(err).Msg("Error decoding scoped values")
		return nil, err
	}

	for _, doc := range docs {
		item := &storage.StoreItem{Values: make(map[string]storage.Entry, len(doc.Values))}
		for k, e := range doc.Values {
			item.Values[k] = storage.Entry{Value: json.RawMessage(e.Value), Version: e.Version}
		}
		out[doc.Key] = item
	}
	return out, nil
}

func (s *ScopedStorage) Write(ctx context.Context, items map[string]*storage.StoreItem) error {
	now := time.Now().UTC()
	for key, item := range items {
		doc := scopedItemDocument{
			Key:       key,
			Values:    make(map[string]scopedEntryDocument, len(item.Values)),
			UpdatedAt: now,
		}
		for k, e := range item.Values {
			doc.Values[k] = scopedEntryDocument{Value: string(e.Value), Version: e.Version}
		}
		_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("Error writing scoped values")
			return fmt.Errorf("write %s: %w", key, err)
		}
	}
	return nil
}

func (s *ScopedStorage) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := s.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": keys}}); err != nil {
		log.Error().Err(err).Strs("keys", keys).Msg("Error deleting scoped values")
		return err
	}
	return nil
}

var _ storage.Storage = (*ScopedStorage)(nil)
