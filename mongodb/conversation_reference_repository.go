package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/pilab-dev/teams-collab/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type conversationReferenceDocument struct {
	ThreadKey string                        `bson:"_id"`
	Reference *domain.ConversationReference `bson:"reference"`
	UpdatedAt time.Time                     `bson:"updated_at"`
}

// ConversationReferenceRepository implements domain.ConversationReferenceRepository.
// One document per thread key, overwritten on every Put.
type ConversationReferenceRepository struct {
	collection *mongo.Collection
}

// NewConversationReferenceRepository creates a new ConversationReferenceRepository.
func NewConversationReferenceRepository(db *mongo.Database) *ConversationReferenceRepository {
	return &ConversationReferenceRepository{collection: db.Collection(ConversationReferencesCollection)}
}

func (r *ConversationReferenceRepository) Put(ctx context.Context, threadKey string, ref *domain.ConversationReference) error {
	doc := conversationReferenceDocument{
		ThreadKey: threadKey,
		Reference: ref,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": threadKey}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		log.Error().Err(err).Str("threadKey", threadKey).Msg("Error storing conversation reference")
		return err
	}
	return nil
}

func (r *ConversationReferenceRepository) Get(ctx context.Context, threadKey string) (*domain.ConversationReference, error) {
	var doc conversationReferenceDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": threadKey}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrConversationReferenceNotFound
		}
		log.Error().Err(err).Str("threadKey", threadKey).Msg("Error getting conversation reference")
		return nil, err
	}
	if doc.Reference == nil {
		return nil, domain.ErrConversationReferenceNotFound
	}
	return doc.Reference, nil
}

var _ domain.ConversationReferenceRepository = (*ConversationReferenceRepository)(nil)
