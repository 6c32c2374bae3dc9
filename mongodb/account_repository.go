package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pilab-dev/teams-collab/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// AccountRepository implements domain.AccountRepository.
type AccountRepository struct {
	collection *mongo.Collection
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(ctx context.Context, db *mongo.Database) (*AccountRepository, error) {
	repo := &AccountRepository{collection: db.Collection(AccountsCollection)}
	if err := repo.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create accounts indexes")
	}
	return repo, nil
}

func (r *AccountRepository) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			// Lookup only. Uniqueness of a linked identity is checked by the
			// account service before linking.
			Keys:    bson.D{{Key: "linked_identity.object_id", Value: 1}, {Key: "linked_identity.tenant_id", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		return fmt.Errorf("failed to create indexes for %s collection: %w", AccountsCollection, err)
	}
	log.Info().Msgf("Indexes for %s collection ensured.", AccountsCollection)
	return nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	if account.ID == "" {
		account.ID = NewObjectID()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, account); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAccountExists
		}
		log.Error().Err(err).Str("email", account.Email).Msg("Error creating account")
		return err
	}
	return nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *AccountRepository) FindByExternalIdentity(ctx context.Context, objectID, tenantID string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{
		"linked_identity.object_id": objectID,
		"linked_identity.tenant_id": tenantID,
	})
}

// UpsertLink sets or clears the linked identity of the account with email.
// The stored record is read back, so callers always see the persisted id.
func (r *AccountRepository) UpsertLink(ctx context.Context, email string, identity *domain.LinkedIdentity) (*domain.Account, error) {
	update := bson.M{"$set": bson.M{"updated_at": time.Now().UTC()}}
	if identity != nil {
		update["$set"].(bson.M)["linked_identity"] = identity
	} else {
		update["$unset"] = bson.M{"linked_identity": ""}
	}

	res, err := r.collection.UpdateOne(ctx, bson.M{"email": email}, update)
	if err != nil {
		log.Error().Err(err).Str("email", email).Msg("Error updating linked identity")
		return nil, err
	}
	if res.MatchedCount == 0 {
		return nil, domain.ErrAccountNotFound
	}
	return r.FindByEmail(ctx, email)
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M) (*domain.Account, error) {
	var account domain.Account
	err := r.collection.FindOne(ctx, filter).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		log.Error().Err(err).Interface("filter", filter).Msg("Error finding account")
		return nil, err
	}
	return &account, nil
}

var _ domain.AccountRepository = (*AccountRepository)(nil)
