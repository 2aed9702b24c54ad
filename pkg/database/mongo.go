package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names mirror the SQLite tables
const (
	colLogs         = "moderationLogs"
	colTimeouts     = "moderationTimeouts"
	colWarnSettings = "moderationWarnSettings"
	colSettings     = "moderationSettings"
)

// maxCaseInsertAttempts bounds the optimistic retry loop of InsertCase
const maxCaseInsertAttempts = 8

// MongoGateway implements Gateway on MongoDB. Multi-step operations rely on
// single-document atomic commands and unique indexes instead of transactions,
// so a standalone server is enough.
type MongoGateway struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ Gateway = (*MongoGateway)(nil)

// OpenMongo connects, verifies the connection and ensures the indexes
func OpenMongo(ctx context.Context, mongoURL, dbName string) (*MongoGateway, error) {
	logger.System("Intentando conectar a la base de datos...", "DB")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(mongoURL).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		logger.Critical("Fallo al conectar con la base de datos.", "DB")
		return nil, err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		logger.Critical("Fallo al verificar conexión con la base de datos.", "DB")
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	g := &MongoGateway{client: client, db: client.Database(dbName)}
	if err := g.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	logger.Success("Conectado exitosamente a la base de datos.", "DB")
	return g, nil
}

func (g *MongoGateway) ensureIndexes(ctx context.Context) error {
	_, err := g.db.Collection(colLogs).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "serverId", Value: 1}, {Key: "caseId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "serverId", Value: 1}, {Key: "userId", Value: 1}, {Key: "type", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = g.db.Collection(colTimeouts).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "serverId", Value: 1}, {Key: "userId", Value: 1}, {Key: "type", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = g.db.Collection(colWarnSettings).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "serverId", Value: 1}, {Key: "numWarns", Value: 1}},
	})
	return err
}

// ========== Cases ==========

// InsertCase reads the highest case id and inserts id+1. The unique index on
// (serverId, caseId) rejects a concurrent writer that picked the same id, in
// which case the read is repeated.
func (g *MongoGateway) InsertCase(ctx context.Context, c models.ModerationCase) (int64, error) {
	col := g.db.Collection(colLogs)

	for attempt := 0; attempt < maxCaseInsertAttempts; attempt++ {
		last, err := g.LastCaseID(ctx, c.ServerID)
		if err != nil {
			return 0, err
		}

		c.CaseID = last + 1
		if err := c.Validate(); err != nil {
			return 0, err
		}

		_, err = col.InsertOne(ctx, c)
		if err == nil {
			return c.CaseID, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return 0, fmt.Errorf("insert case: %w", err)
		}
		logger.Debug(fmt.Sprintf("Colisión de caso #%d en %s, reintentando", c.CaseID, c.ServerID), "DB")
	}
	return 0, fmt.Errorf("insert case: gave up after %d id collisions", maxCaseInsertAttempts)
}

func (g *MongoGateway) LastCaseID(ctx context.Context, serverID string) (int64, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "caseId", Value: -1}}).
		SetProjection(bson.M{"caseId": 1})

	var doc struct {
		CaseID int64 `bson:"caseId"`
	}
	err := g.db.Collection(colLogs).FindOne(ctx, bson.M{"serverId": serverID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read last case id: %w", err)
	}
	return doc.CaseID, nil
}

func (g *MongoGateway) GetCase(ctx context.Context, serverID string, caseID int64) (*models.ModerationCase, error) {
	var c models.ModerationCase
	err := g.db.Collection(colLogs).FindOne(ctx, bson.M{"serverId": serverID, "caseId": caseID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (g *MongoGateway) ListCases(ctx context.Context, serverID, userID string) ([]models.ModerationCase, error) {
	opts := options.Find().SetSort(bson.D{{Key: "caseId", Value: 1}})
	cursor, err := g.db.Collection(colLogs).Find(ctx, bson.M{"serverId": serverID, "userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()

	var cases []models.ModerationCase
	if err := cursor.All(ctx, &cases); err != nil {
		return nil, err
	}
	return cases, validateAll(cases)
}

func (g *MongoGateway) CountCases(ctx context.Context, serverID, userID string, action models.ActionType) (int, error) {
	n, err := g.db.Collection(colLogs).CountDocuments(ctx,
		bson.M{"serverId": serverID, "userId": userID, "type": action})
	if err != nil {
		return 0, fmt.Errorf("count cases: %w", err)
	}
	return int(n), nil
}

func (g *MongoGateway) DeleteCase(ctx context.Context, serverID string, caseID int64, action models.ActionType) (bool, error) {
	res, err := g.db.Collection(colLogs).DeleteOne(ctx,
		bson.M{"serverId": serverID, "caseId": caseID, "type": action})
	if err != nil {
		return false, fmt.Errorf("delete case: %w", err)
	}
	return res.DeletedCount > 0, nil
}

// ========== Settings ==========

func (g *MongoGateway) GetModLogChannel(ctx context.Context, serverID string) (string, bool, error) {
	var doc struct {
		ChannelID *string `bson:"channelId"`
	}
	err := g.db.Collection(colSettings).FindOne(ctx, bson.M{"serverId": serverID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read mod log channel: %w", err)
	}
	if doc.ChannelID == nil {
		return "", false, nil
	}
	return *doc.ChannelID, true, nil
}

func (g *MongoGateway) SetModLogChannel(ctx context.Context, serverID string, channelID *string) error {
	opts := options.Update().SetUpsert(true)
	_, err := g.db.Collection(colSettings).UpdateOne(ctx,
		bson.M{"serverId": serverID},
		bson.M{"$set": bson.M{"channelId": channelID}},
		opts)
	if err != nil {
		return fmt.Errorf("set mod log channel: %w", err)
	}
	return nil
}

// ========== Warn escalation ==========

func (g *MongoGateway) InsertWarnRule(ctx context.Context, r models.WarnEscalationRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if _, err := g.db.Collection(colWarnSettings).InsertOne(ctx, r); err != nil {
		return fmt.Errorf("insert warn rule: %w", err)
	}
	return nil
}

// FindWarnRule sorts by _id; ObjectIDs grow with insertion time
func (g *MongoGateway) FindWarnRule(ctx context.Context, serverID string, numWarns int) (*models.WarnEscalationRule, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})

	var r models.WarnEscalationRule
	err := g.db.Collection(colWarnSettings).FindOne(ctx,
		bson.M{"serverId": serverID, "numWarns": numWarns}, opts).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (g *MongoGateway) ListWarnRules(ctx context.Context, serverID string) ([]models.WarnEscalationRule, error) {
	opts := options.Find().SetSort(bson.D{{Key: "numWarns", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := g.db.Collection(colWarnSettings).Find(ctx, bson.M{"serverId": serverID}, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()

	var rules []models.WarnEscalationRule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, err
	}
	return rules, validateAll(rules)
}

func (g *MongoGateway) DeleteWarnRules(ctx context.Context, serverID string) (int64, error) {
	res, err := g.db.Collection(colWarnSettings).DeleteMany(ctx, bson.M{"serverId": serverID})
	if err != nil {
		return 0, fmt.Errorf("delete warn rules: %w", err)
	}
	return res.DeletedCount, nil
}

// ========== Timeouts ==========

func timeoutKey(serverID, userID string, action models.ActionType) bson.M {
	return bson.M{"serverId": serverID, "userId": userID, "type": action}
}

func (g *MongoGateway) UpsertTimeout(ctx context.Context, t models.ActiveTimeout, mode UpsertMode) error {
	if err := t.Validate(); err != nil {
		return err
	}

	update := bson.M{
		"$set":         bson.M{"timerId": t.Handle},
		"$setOnInsert": bson.M{"endTime": t.EndTime},
	}
	if mode == RefreshEndTime {
		update = bson.M{"$set": bson.M{"timerId": t.Handle, "endTime": t.EndTime}}
	}

	opts := options.Update().SetUpsert(true)
	_, err := g.db.Collection(colTimeouts).UpdateOne(ctx,
		timeoutKey(t.ServerID, t.SubjectUserID, t.Action), update, opts)
	if err != nil {
		return fmt.Errorf("upsert timeout: %w", err)
	}
	return nil
}

func (g *MongoGateway) GetTimeout(ctx context.Context, serverID, userID string, action models.ActionType) (*models.ActiveTimeout, error) {
	var t models.ActiveTimeout
	err := g.db.Collection(colTimeouts).FindOne(ctx, timeoutKey(serverID, userID, action)).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (g *MongoGateway) TakeTimeout(ctx context.Context, serverID, userID string, action models.ActionType) (*models.ActiveTimeout, error) {
	var t models.ActiveTimeout
	err := g.db.Collection(colTimeouts).FindOneAndDelete(ctx, timeoutKey(serverID, userID, action)).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("take timeout: %w", err)
	}
	return &t, nil
}

func (g *MongoGateway) ListTimeouts(ctx context.Context, serverID string) ([]models.ActiveTimeout, error) {
	filter := bson.M{}
	if serverID != "" {
		filter["serverId"] = serverID
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "serverId", Value: 1}, {Key: "userId", Value: 1}, {Key: "type", Value: 1},
	})

	cursor, err := g.db.Collection(colTimeouts).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()

	var timeouts []models.ActiveTimeout
	if err := cursor.All(ctx, &timeouts); err != nil {
		return nil, err
	}
	return timeouts, validateAll(timeouts)
}

// ========== Connection ==========

func (g *MongoGateway) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := g.client.Ping(ctx, readpref.Primary())
	return time.Since(start), err
}

func (g *MongoGateway) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := g.client.Disconnect(ctx); err != nil {
		return err
	}
	logger.Warn("La base de datos ha sido desconectada", "DB")
	return nil
}
