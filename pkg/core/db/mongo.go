package db

import (
	"context"
	"errors"
	"time"

	"github.com/zuchzub/vcplayer/pkg/config"
	"github.com/zuchzub/vcplayer/pkg/core/cache"

	"github.com/Laky-64/gologging"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ChatSettings are the per-chat preferences kept in MongoDB.
type ChatSettings struct {
	ID        int64  `bson:"_id"`
	MaxQueue  int    `bson:"max_queue,omitempty"`
	Lang      string `bson:"lang,omitempty"`
	Assistant string `bson:"assistant,omitempty"`
}

// Database encapsulates the MongoDB connection, its collections and the settings cache.
type Database struct {
	Client    *mongo.Client
	DB        *mongo.Database
	ChatDB    *mongo.Collection
	UserDB    *mongo.Collection
	ChatCache *cache.Cache[ChatSettings]
	UserCache *cache.Cache[struct{}]
}

// Instance is the global singleton for the database.
var Instance *Database

// InitDatabase connects to MongoDB and sets up the global instance.
func InitDatabase(ctx context.Context) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.Conf.MongoUri))
	if err != nil {
		return err
	}

	db := client.Database(config.Conf.DbName)
	Instance = &Database{
		Client:    client,
		DB:        db,
		ChatDB:    db.Collection("chats"),
		UserDB:    db.Collection("users"),
		ChatCache: cache.NewCache[ChatSettings](20 * time.Minute),
		UserCache: cache.NewCache[struct{}](20 * time.Minute),
	}

	if err := Instance.Ping(ctx); err != nil {
		return err
	}

	gologging.Info("[DB] The database connection has been successfully established.")
	return nil
}

// Ping verifies the connection to the MongoDB server.
func (db *Database) Ping(ctx context.Context) error {
	return db.Client.Ping(ctx, nil)
}

// ----------------- CHAT -----------------

// GetChat returns the settings of a chat. A chat without a document gets zero settings.
func (db *Database) GetChat(ctx context.Context, chatID int64) (ChatSettings, error) {
	key := toKey(chatID)
	if cached, ok := db.ChatCache.Get(key); ok {
		return cached, nil
	}

	chat := ChatSettings{ID: chatID}
	err := db.ChatDB.FindOne(ctx, bson.M{"_id": chatID}).Decode(&chat)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		gologging.WarnF("[DB] An error occurred while getting the chat: %v", err)
		return chat, err
	}

	db.ChatCache.Set(key, chat)
	return chat, nil
}

// AddChat records a chat the bot has seen.
func (db *Database) AddChat(ctx context.Context, chatID int64) error {
	if _, ok := db.ChatCache.Get(toKey(chatID)); ok {
		return nil
	}
	_, err := db.ChatDB.UpdateOne(ctx, bson.M{"_id": chatID}, bson.M{"$setOnInsert": bson.M{}}, options.Update().SetUpsert(true))
	if err == nil {
		gologging.DebugF("[DB] Chat %d recorded.", chatID)
	}
	return err
}

// updateChatField sets one field of a chat's document and drops the cached copy.
func (db *Database) updateChatField(ctx context.Context, chatID int64, key string, value any) error {
	update := bson.M{"$set": bson.M{key: value}}
	if value == nil {
		update = bson.M{"$unset": bson.M{key: ""}}
	}
	_, err := db.ChatDB.UpdateOne(ctx, bson.M{"_id": chatID}, update, options.Update().SetUpsert(true))
	db.ChatCache.Delete(toKey(chatID))
	return err
}

// GetMaxQueue returns the queue limit of a chat, or def when it has none.
func (db *Database) GetMaxQueue(ctx context.Context, chatID int64, def int) int {
	chat, _ := db.GetChat(ctx, chatID)
	if chat.MaxQueue > 0 {
		return chat.MaxQueue
	}
	return def
}

func (db *Database) SetMaxQueue(ctx context.Context, chatID int64, n int) error {
	return db.updateChatField(ctx, chatID, "max_queue", n)
}

// GetLang returns the language code of a chat, "en" by default.
func (db *Database) GetLang(ctx context.Context, chatID int64) string {
	chat, _ := db.GetChat(ctx, chatID)
	if chat.Lang == "" {
		return "en"
	}
	return chat.Lang
}

func (db *Database) SetLang(ctx context.Context, chatID int64, lang string) error {
	return db.updateChatField(ctx, chatID, "lang", lang)
}

// GetAssistant returns the name of the assistant serving a chat.
func (db *Database) GetAssistant(ctx context.Context, chatID int64) (string, error) {
	chat, err := db.GetChat(ctx, chatID)
	return chat.Assistant, err
}

func (db *Database) SetAssistant(ctx context.Context, chatID int64, assistant string) error {
	return db.updateChatField(ctx, chatID, "assistant", assistant)
}

func (db *Database) RemoveAssistant(ctx context.Context, chatID int64) error {
	return db.updateChatField(ctx, chatID, "assistant", nil)
}

// ----------------- USERS -----------------

// AddUser records a user who talked to the bot in private.
func (db *Database) AddUser(ctx context.Context, userID int64) error {
	key := toKey(userID)
	if _, ok := db.UserCache.Get(key); ok {
		return nil
	}

	_, err := db.UserDB.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$setOnInsert": bson.M{}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return err
	}
	db.UserCache.Set(key, struct{}{})
	return nil
}

// Counts returns how many chats and users are recorded.
func (db *Database) Counts(ctx context.Context) (chats, users int64, err error) {
	if chats, err = db.ChatDB.CountDocuments(ctx, bson.M{}); err != nil {
		return 0, 0, err
	}
	if users, err = db.UserDB.CountDocuments(ctx, bson.M{}); err != nil {
		return 0, 0, err
	}
	return chats, users, nil
}

// Close gracefully closes the database connection.
func (db *Database) Close(ctx context.Context) error {
	gologging.Info("[DB] Closing the database connection...")
	return db.Client.Disconnect(ctx)
}
