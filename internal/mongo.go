package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pangalink/config"
	"pangalink/entity"
	"pangalink/services"
)

const (
	collectionLog           = "log"
	collectionProjects      = "project"
	collectionPayments      = "payment"
	collectionPaymentErrors = "payment_error"
	collectionCounters      = "counter"
)

type MongoDB struct {
	ctx              context.Context
	clientOptions    *options.ClientOptions
	database         string
	logRecordsNumber int64
	pageSize         int64
}

func NewMongoClient(conf *config.Config) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	pageSize := conf.Banklink.PagingCount
	if pageSize <= 0 {
		pageSize = 30
	}
	client := &MongoDB{
		ctx:              context.Background(),
		clientOptions:    clientOptions,
		database:         conf.Mongo.Database,
		logRecordsNumber: conf.LogRecords,
		pageSize:         pageSize,
	}
	return client, nil
}

func (m *MongoDB) connect() (*mongo.Client, error) {
	connection, err := mongo.Connect(m.ctx, m.clientOptions)
	if err != nil {
		return nil, err
	}
	return connection, nil
}

func (m *MongoDB) disconnect(connection *mongo.Client) {
	err := connection.Disconnect(m.ctx)
	if err != nil {
		log.Println("mongodb disconnect error", err)
	}
}

// EnsureIndexes creates the lookup indexes. It is safe to run on every start.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	db := connection.Database(m.database)
	_, err = db.Collection(collectionProjects).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{"uid", 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{"owner", 1}, {"updated_date", -1}}},
	})
	if err != nil {
		return fmt.Errorf("project indexes: %w", err)
	}
	_, err = db.Collection(collectionPayments).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{"project", 1}, {"date", -1}}},
		{Keys: bson.D{{"date", -1}}},
	})
	if err != nil {
		return fmt.Errorf("payment indexes: %w", err)
	}
	_, err = db.Collection(collectionPaymentErrors).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{"project", 1}, {"date", -1}},
	})
	if err != nil {
		return fmt.Errorf("payment error indexes: %w", err)
	}
	return nil
}

func (m *MongoDB) WriteLogMessage(data services.Data) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)
	collection := connection.Database(m.database).Collection(collectionLog)
	if _, err = collection.InsertOne(m.ctx, data); err != nil {
		return err
	}
	if m.logRecordsNumber > 0 {
		m.trimLog(collection)
	}
	return nil
}

// trimLog keeps the newest logRecordsNumber entries.
func (m *MongoDB) trimLog(collection *mongo.Collection) {
	opt := options.FindOne().SetSort(bson.D{{"time", -1}}).SetSkip(m.logRecordsNumber)
	var oldest entity.LogMessage
	if err := collection.FindOne(m.ctx, bson.D{}, opt).Decode(&oldest); err != nil {
		return
	}
	_, _ = collection.DeleteMany(m.ctx, bson.D{{"time", bson.D{{"$lte", oldest.Time}}}})
}

func (m *MongoDB) findOne(ctx context.Context, name string, filter bson.D, result interface{}) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(name)
	err = collection.FindOne(ctx, filter).Decode(result)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return services.ErrNotFound
	}
	return err
}

func (m *MongoDB) GetProject(ctx context.Context, id string) (*entity.Project, error) {
	var project entity.Project
	if err := m.findOne(ctx, collectionProjects, bson.D{{"_id", id}}, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

func (m *MongoDB) GetProjectByUID(ctx context.Context, uid string) (*entity.Project, error) {
	var project entity.Project
	if err := m.findOne(ctx, collectionProjects, bson.D{{"uid", uid}}, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

func (m *MongoDB) SaveProject(ctx context.Context, project *entity.Project) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{"_id", project.Id}}
	collection := connection.Database(m.database).Collection(collectionProjects)
	_, err = collection.ReplaceOne(ctx, filter, project, options.Replace().SetUpsert(true))
	return err
}

func (m *MongoDB) TouchProject(ctx context.Context, id string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionProjects)
	filter := bson.D{{"_id", id}}
	update := bson.D{
		{"$set", bson.D{
			{"updated_date", time.Now()},
		}},
	}
	_, err = collection.UpdateOne(ctx, filter, update)
	return err
}

// DeleteProject removes the project with its payments, payment errors and counter.
func (m *MongoDB) DeleteProject(ctx context.Context, id string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	db := connection.Database(m.database)
	var project entity.Project
	err = db.Collection(collectionProjects).FindOne(ctx, bson.D{{"_id", id}}).Decode(&project)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return services.ErrNotFound
	}
	if err != nil {
		return err
	}
	if _, err = db.Collection(collectionPayments).DeleteMany(ctx, bson.D{{"project", id}}); err != nil {
		return fmt.Errorf("delete payments: %w", err)
	}
	if _, err = db.Collection(collectionPaymentErrors).DeleteMany(ctx, bson.D{{"project", id}}); err != nil {
		return fmt.Errorf("delete payment errors: %w", err)
	}
	if _, err = db.Collection(collectionCounters).DeleteOne(ctx, bson.D{{"_id", "trans:" + project.Uid}}); err != nil {
		return fmt.Errorf("delete counter: %w", err)
	}
	_, err = db.Collection(collectionProjects).DeleteOne(ctx, bson.D{{"_id", id}})
	return err
}

func (m *MongoDB) ListProjects(ctx context.Context, owner string, page int64) ([]*entity.Project, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	filter := bson.D{}
	if owner != "" {
		filter = bson.D{{"$or", bson.A{
			bson.D{{"owner", owner}},
			bson.D{{"authorized_users", owner}},
		}}}
	}
	opt := options.Find().
		SetSort(bson.D{{"name", 1}}).
		SetSkip(m.skip(page)).
		SetLimit(m.pageSize)
	collection := connection.Database(m.database).Collection(collectionProjects)
	cursor, err := collection.Find(ctx, filter, opt)
	if err != nil {
		return nil, err
	}
	var projects []*entity.Project
	if err = cursor.All(ctx, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (m *MongoDB) skip(page int64) int64 {
	if page < 1 {
		page = 1
	}
	return (page - 1) * m.pageSize
}

func (m *MongoDB) GetPayment(ctx context.Context, id string) (*entity.Payment, error) {
	var payment entity.Payment
	if err := m.findOne(ctx, collectionPayments, bson.D{{"_id", id}}, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (m *MongoDB) SavePayment(ctx context.Context, payment *entity.Payment) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{"_id", payment.Id}}
	collection := connection.Database(m.database).Collection(collectionPayments)
	_, err = collection.ReplaceOne(ctx, filter, payment, options.Replace().SetUpsert(true))
	return err
}

// CompletePayment replaces the payment only while the stored one is IN PROCESS,
// a concurrent completion makes it fail with ErrConflict.
func (m *MongoDB) CompletePayment(ctx context.Context, payment *entity.Payment) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{"_id", payment.Id}, {"state", entity.StateInProcess}}
	collection := connection.Database(m.database).Collection(collectionPayments)
	result, err := collection.ReplaceOne(ctx, filter, payment)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return services.ErrConflict
	}
	return nil
}

func (m *MongoDB) ListPayments(ctx context.Context, projectId string, page int64) ([]*entity.Payment, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	opt := options.Find().
		SetSort(bson.D{{"date", -1}}).
		SetSkip(m.skip(page)).
		SetLimit(m.pageSize).
		SetProjection(bson.D{{"body", 0}, {"headers", 0}})
	collection := connection.Database(m.database).Collection(collectionPayments)
	cursor, err := collection.Find(ctx, bson.D{{"project", projectId}}, opt)
	if err != nil {
		return nil, err
	}
	var payments []*entity.Payment
	if err = cursor.All(ctx, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

func (m *MongoDB) CountPayments(ctx context.Context, projectId string) (int64, error) {
	connection, err := m.connect()
	if err != nil {
		return 0, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionPayments)
	return collection.CountDocuments(ctx, bson.D{{"project", projectId}})
}

func (m *MongoDB) SavePaymentError(ctx context.Context, paymentError *entity.PaymentError) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionPaymentErrors)
	_, err = collection.InsertOne(ctx, paymentError)
	return err
}

type counterRecord struct {
	Key   string `bson:"_id"`
	Value int64  `bson:"value"`
}

// Increment atomically increases the named counter and returns the new value.
func (m *MongoDB) Increment(ctx context.Context, key string) (int64, error) {
	connection, err := m.connect()
	if err != nil {
		return 0, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionCounters)
	update := bson.D{{"$inc", bson.D{{"value", 1}}}}
	opt := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var counter counterRecord
	if err = collection.FindOneAndUpdate(ctx, bson.D{{"_id", key}}, update, opt).Decode(&counter); err != nil {
		return 0, fmt.Errorf("increment %s: %w", key, err)
	}
	return counter.Value, nil
}

func (m *MongoDB) Reset(ctx context.Context, key string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionCounters)
	_, err = collection.DeleteOne(ctx, bson.D{{"_id", key}})
	return err
}
