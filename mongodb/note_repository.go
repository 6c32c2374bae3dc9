package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/pilab-dev/teams-collab/domain"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// NoteRepository implements domain.NoteRepository.
type NoteRepository struct {
	collection *mongo.Collection
}

// NewNoteRepository creates a new NoteRepository.
func NewNoteRepository(ctx context.Context, db *mongo.Database) (*NoteRepository, error) {
	repo := &NoteRepository{collection: db.Collection(NotesCollection)}
	if err := repo.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create notes indexes")
	}
	return repo, nil
}

func (r *NoteRepository) createIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "thread_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "created_by_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "created_by_object_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes for %s collection: %w", NotesCollection, err)
	}
	return nil
}

func (r *NoteRepository) CreateNote(ctx context.Context, note *domain.Note) error {
	if note.ID == "" {
		note.ID = NewObjectID()
	}
	if _, err := r.collection.InsertOne(ctx, note); err != nil {
		log.Error().Err(err).Str("noteID", note.ID).Msg("Error creating note")
		return err
	}
	return nil
}

func (r *NoteRepository) GetNote(ctx context.Context, id string) (*domain.Note, error) {
	var note domain.Note
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&note)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNoteNotFound
		}
		log.Error().Err(err).Str("noteID", id).Msg("Error getting note")
		return nil, err
	}
	return &note, nil
}

func (r *NoteRepository) ListNotes(ctx context.Context, filter domain.NoteFilter) ([]*domain.Note, error) {
	query := bson.M{}
	if !filter.Owner.IsZero() {
		var owners bson.A
		if filter.Owner.AccountID != "" {
			owners = append(owners, bson.M{"created_by_id": filter.Owner.AccountID})
		}
		if filter.Owner.ObjectID != "" {
			owners = append(owners, bson.M{"created_by_object_id": filter.Owner.ObjectID})
		}
		query["$or"] = owners
	}
	if filter.ThreadID != "" {
		query["thread_id"] = filter.ThreadID
	}

	cursor, err := r.collection.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		log.Error().Err(err).Msg("Error listing notes")
		return nil, err
	}
	defer cursor.Close(ctx)

	notes := []*domain.Note{}
	if err := cursor.All(ctx, &notes); err != nil {
		log.Error().Err(err).Msg("Error decoding listed notes")
		return nil, err
	}
	return notes, nil
}

func (r *NoteRepository) UpdateNote(ctx context.Context, note *domain.Note) error {
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": note.ID}, note)
	if err != nil {
		log.Error().Err(err).Str("noteID", note.ID).Msg("Error updating note")
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNoteNotFound
	}
	return nil
}

func (r *NoteRepository) DeleteNote(ctx context.Context, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		log.Error().Err(err).Str("noteID", id).Msg("Error deleting note")
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNoteNotFound
	}
	return nil
}

var _ domain.NoteRepository = (*NoteRepository)(nil)
