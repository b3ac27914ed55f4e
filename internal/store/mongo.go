// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pdiddy/vaspdb/internal/vaspio"
	"github.com/pdiddy/vaspdb/pkg/types"
)

// Mongo defaults.
const (
	DefaultHost       = "127.0.0.1"
	DefaultPort       = 27017
	DefaultDatabase   = "vasp"
	DefaultCollection = "tasks"
	dosBucket         = "dos_fs"
	counterColl       = "counter"
)

// Mongo stores task documents in a MongoDB collection and density of
// states payloads in the dos_fs GridFS bucket.
type Mongo struct {
	client  *mongo.Client
	tasks   *mongo.Collection
	counter *mongo.Collection
	dos     *gridfs.Bucket
}

var _ TaskStore = (*Mongo)(nil)

// OpenMongo connects to the server in cfg and ensures the dir_name and
// task_id indexes exist.
func OpenMongo(ctx context.Context, cfg types.DBConfig) (*Mongo, error) {
	host, port := cfg.Host, cfg.Port
	if host == "" {
		host = DefaultHost
	}
	if port == 0 {
		port = DefaultPort
	}
	dbName, collName := cfg.Database, cfg.Collection
	if dbName == "" {
		dbName = DefaultDatabase
	}
	if collName == "" {
		collName = DefaultCollection
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := options.Client().
		ApplyURI(fmt.Sprintf("mongodb://%s:%d", host, port)).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	if cfg.User != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.User,
			Password:   cfg.Password,
			AuthSource: dbName,
		})
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo %s:%d: %w", host, port, err)
	}

	db := client.Database(dbName)
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(dosBucket))
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("opening gridfs bucket: %w", err)
	}
	m := &Mongo{
		client:  client,
		tasks:   db.Collection(collName),
		counter: db.Collection(counterColl),
		dos:     bucket,
	}

	_, err = m.tasks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "dir_name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "task_id", Value: 1}}},
	})
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("creating indexes: %w", err)
	}
	return m, nil
}

// Close disconnects from the server.
func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// Atomic runs fn directly against the collections. Standalone servers
// have no transactions; the unique dir_name index rejects a concurrent
// duplicate insert.
func (m *Mongo) Atomic(ctx context.Context, fn func(Tx) error) error {
	return fn(&mongoTx{m: m})
}

type mongoTx struct {
	m *Mongo
}

func (t *mongoTx) FindByDir(ctx context.Context, dirName string) (int64, bool, error) {
	var found struct {
		TaskID int64 `bson:"task_id"`
	}
	err := t.m.tasks.FindOne(ctx, bson.M{"dir_name": dirName},
		options.FindOne().SetProjection(bson.M{"task_id": 1})).Decode(&found)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return found.TaskID, true, nil
}

func (t *mongoTx) NextTaskID(ctx context.Context) (int64, error) {
	_, err := t.m.counter.UpdateOne(ctx,
		bson.M{"_id": counterID},
		bson.M{"$setOnInsert": bson.M{"c": int64(1)}},
		options.Update().SetUpsert(true))
	if err != nil {
		return 0, err
	}
	var before struct {
		C int64 `bson:"c"`
	}
	err = t.m.counter.FindOneAndUpdate(ctx,
		bson.M{"_id": counterID},
		bson.M{"$inc": bson.M{"c": int64(1)}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before)).Decode(&before)
	if err != nil {
		return 0, err
	}
	return before.C, nil
}

func (t *mongoTx) ReserveTaskID(ctx context.Context, taskID int64) error {
	_, err := t.m.counter.UpdateOne(ctx,
		bson.M{"_id": counterID},
		bson.M{"$max": bson.M{"c": taskID + 1}},
		options.Update().SetUpsert(true))
	return err
}

func (t *mongoTx) Insert(ctx context.Context, doc *types.TaskDoc) error {
	m, err := toBSON(doc)
	if err != nil {
		return err
	}
	_, err = t.m.tasks.InsertOne(ctx, m)
	return err
}

func (t *mongoTx) Update(ctx context.Context, doc *types.TaskDoc) error {
	m, err := toBSON(doc)
	if err != nil {
		return err
	}
	delete(m, "_id")
	_, err = t.m.tasks.UpdateOne(ctx, bson.M{"dir_name": doc.DirName}, bson.M{"$set": m})
	return err
}

func (t *mongoTx) PutDOS(_ context.Context, dos *vaspio.DOS) (string, error) {
	data, err := json.Marshal(dos)
	if err != nil {
		return "", fmt.Errorf("marshaling dos: %w", err)
	}
	id, err := t.m.dos.UploadFromStream("dos", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	return id.Hex(), nil
}

// toBSON converts a task document through its JSON form so Extra keys and
// field names match the SQLite backend.
func toBSON(doc *types.TaskDoc) (bson.M, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling task: %w", err)
	}
	var m bson.M
	if err := bson.UnmarshalExtJSON(data, false, &m); err != nil {
		return nil, fmt.Errorf("converting task to bson: %w", err)
	}
	return m, nil
}

func fromBSON(raw bson.Raw) (*types.TaskDoc, error) {
	data, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("converting task from bson: %w", err)
	}
	var doc types.TaskDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding task: %w", err)
	}
	delete(doc.Extra, "_id")
	if len(doc.Extra) == 0 {
		doc.Extra = nil
	}
	return &doc, nil
}

// Get returns the task with the given id.
func (m *Mongo) Get(ctx context.Context, taskID int64) (*types.TaskDoc, error) {
	return m.findOne(ctx, bson.M{"task_id": taskID})
}

// GetByDir returns the task stored for dirName.
func (m *Mongo) GetByDir(ctx context.Context, dirName string) (*types.TaskDoc, error) {
	return m.findOne(ctx, bson.M{"dir_name": dirName})
}

func (m *Mongo) findOne(ctx context.Context, filter bson.M) (*types.TaskDoc, error) {
	raw, err := m.tasks.FindOne(ctx, filter).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%v: %w", filter, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying task: %w", err)
	}
	return fromBSON(raw)
}

// Retrieve returns the tasks matching opts ordered by task id.
func (m *Mongo) Retrieve(ctx context.Context, opts QueryOptions) ([]*types.TaskDoc, error) {
	filter := bson.D{}
	if opts.Chemsys != "" {
		filter = append(filter, bson.E{Key: "chemsys", Value: opts.Chemsys})
	}
	if opts.Formula != "" {
		filter = append(filter, bson.E{Key: "pretty_formula", Value: opts.Formula})
	}
	if opts.State != "" {
		filter = append(filter, bson.E{Key: "state", Value: string(opts.State)})
	}
	if opts.RunType != "" {
		filter = append(filter, bson.E{Key: "run_type", Value: opts.RunType})
	}
	if len(opts.Elements) > 0 {
		filter = append(filter, bson.E{Key: "elements", Value: bson.M{"$all": opts.Elements}})
	}

	cur, err := m.tasks.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "task_id", Value: 1}}).
		SetLimit(int64(opts.limit())))
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer cur.Close(ctx)

	var docs []*types.TaskDoc
	for cur.Next(ctx) {
		doc, err := fromBSON(cur.Current)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, cur.Err()
}

// DOS downloads a density of states from GridFS.
func (m *Mongo) DOS(_ context.Context, id string) (*vaspio.DOS, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("dos id %q: %w", id, err)
	}
	var buf bytes.Buffer
	if _, err := m.dos.DownloadToStream(oid, &buf); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, fmt.Errorf("dos %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("downloading dos: %w", err)
	}
	var dos vaspio.DOS
	if err := json.Unmarshal(buf.Bytes(), &dos); err != nil {
		return nil, fmt.Errorf("decoding dos: %w", err)
	}
	return &dos, nil
}
