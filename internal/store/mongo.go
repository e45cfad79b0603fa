package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	meetingsCollection = "Meetings"
	chunksCollection   = "Chunks"
)

// Config contains MongoDB connection configuration.
type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// MongoStore is the MongoDB-backed MeetingStore.
type MongoStore struct {
	client   *mongo.Client
	meetings *mongo.Collection
	chunks   *mongo.Collection
}

// NewMongoStore connects to MongoDB and verifies the connection.
func NewMongoStore(ctx context.Context, cfg Config) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo URI cannot be empty")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongo database cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &MongoStore{
		client:   client,
		meetings: db.Collection(meetingsCollection),
		chunks:   db.Collection(chunksCollection),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.meetings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create meeting indexes: %w", err)
	}
	return nil
}

// GetOrCreateMeeting returns the meeting for id, inserting a fresh record
// with status streaming when none exists. The upsert makes concurrent start
// events for the same session converge on a single document.
func (s *MongoStore) GetOrCreateMeeting(ctx context.Context, id, userID string) (*Meeting, error) {
	filter := bson.M{"_id": id}
	update := bson.M{"$setOnInsert": bson.M{
		"user_id":    userID,
		"title":      DefaultTitle,
		"status":     StatusStreaming,
		"created_at": time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var meeting Meeting
	if err := s.meetings.FindOneAndUpdate(ctx, filter, update, opts).Decode(&meeting); err != nil {
		return nil, fmt.Errorf("failed to get or create meeting %s: %w", id, err)
	}
	return &meeting, nil
}

// AppendTranscript joins a new final line onto the accumulated transcript.
// The session worker is the only writer for a given id, so the
// read-modify-write is not racy.
func (s *MongoStore) AppendTranscript(ctx context.Context, id, text string) error {
	meeting, err := s.GetMeeting(ctx, id)
	if err != nil {
		return err
	}

	full := text
	if meeting.Transcript != "" {
		full = meeting.Transcript + "\n" + text
	}

	_, err = s.meetings.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"full_transcript": full}},
	)
	if err != nil {
		return fmt.Errorf("failed to append transcript for meeting %s: %w", id, err)
	}
	return nil
}

// SetStatus records a non-terminal status transition.
func (s *MongoStore) SetStatus(ctx context.Context, id string, status Status) error {
	res, err := s.meetings.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status}},
	)
	if err != nil {
		return fmt.Errorf("failed to set status for meeting %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Finalize sets a terminal status, ended_at and the summary fields.
func (s *MongoStore) Finalize(ctx context.Context, id string, status Status, summary string, actionItems, keyDecisions []string) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize requires a terminal status, got %q", status)
	}

	update := bson.M{
		"status":   status,
		"ended_at": time.Now().UTC(),
	}
	if summary != "" {
		update["summary"] = summary
	}
	if len(actionItems) > 0 {
		update["action_items"] = actionItems
	}
	if len(keyDecisions) > 0 {
		update["key_decisions"] = keyDecisions
	}

	res, err := s.meetings.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("failed to finalize meeting %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMeeting fetches one meeting record.
func (s *MongoStore) GetMeeting(ctx context.Context, id string) (*Meeting, error) {
	var meeting Meeting
	err := s.meetings.FindOne(ctx, bson.M{"_id": id}).Decode(&meeting)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting %s: %w", id, err)
	}
	return &meeting, nil
}

// ListMeetings returns a user's meetings, newest first.
func (s *MongoStore) ListMeetings(ctx context.Context, userID string) ([]Meeting, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.meetings.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings for user %s: %w", userID, err)
	}
	defer cursor.Close(ctx)

	var meetings []Meeting
	if err := cursor.All(ctx, &meetings); err != nil {
		return nil, fmt.Errorf("failed to decode meetings for user %s: %w", userID, err)
	}
	return meetings, nil
}

// DeleteMeeting removes the meeting and its derived retrieval chunks
// together. Chunks are keyed by the meeting id in their folder_id field.
func (s *MongoStore) DeleteMeeting(ctx context.Context, id string) error {
	res, err := s.meetings.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete meeting %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}

	if _, err := s.chunks.DeleteMany(ctx, bson.M{"folder_id": id}); err != nil {
		return fmt.Errorf("failed to delete chunks for meeting %s: %w", id, err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
