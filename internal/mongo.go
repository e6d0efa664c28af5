package internal

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"csms/internal/config"
	"csms/models"
)

const (
	collectionLog           = "sys_log"
	collectionStations      = "stations"
	collectionUsers         = "users"
	collectionSessions      = "sessions"
	collectionTariffs       = "tariffs"
	collectionLedger        = "ledger"
	collectionSubscriptions = "subscriptions"
)

type MongoDB struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
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
	client := &MongoDB{
		ctx:           context.Background(),
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
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
		log.Println("mongodb disconnect error;", err)
	}
}

func (m *MongoDB) WriteLogMessage(data Data) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)
	collection := connection.Database(m.database).Collection(collectionLog)
	_, err = collection.InsertOne(m.ctx, data)
	return err
}

func (m *MongoDB) GetStation(id string) (*models.Station, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var station models.Station
	collection := connection.Database(m.database).Collection(collectionStations)
	filter := bson.D{{Key: "charger_id", Value: id}}
	err = collection.FindOne(m.ctx, filter).Decode(&station)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &station, nil
}

func (m *MongoDB) UpdateStation(station *models.Station) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "charger_id", Value: station.Id}}
	update := bson.M{"$set": station}
	collection := connection.Database(m.database).Collection(collectionStations)
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}

func (m *MongoDB) UpdateStationStatus(id, status string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "charger_id", Value: id}}
	update := bson.M{"$set": bson.M{"status": status}}
	collection := connection.Database(m.database).Collection(collectionStations)
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}

func (m *MongoDB) UpdateStationAddress(id, address string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "charger_id", Value: id}}
	update := bson.M{"$set": bson.M{"ip_address": address}}
	collection := connection.Database(m.database).Collection(collectionStations)
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}

func (m *MongoDB) UpdateConnectorStatus(stationId string, connectorId int, status string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "charger_id", Value: stationId}, {Key: "connectors.connector_id", Value: connectorId}}
	update := bson.M{"$set": bson.M{"connectors.$.status": status}}
	collection := connection.Database(m.database).Collection(collectionStations)
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}

func (m *MongoDB) GetUserByTag(idTag string) (*models.User, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var user models.User
	collection := connection.Database(m.database).Collection(collectionUsers)
	// an id tag may be an email identifier or a physical card tag
	filter := bson.M{"$or": bson.A{
		bson.M{"email_id": idTag},
		bson.M{"rfid_tag": idTag},
	}}
	err = collection.FindOne(m.ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (m *MongoDB) UpdateUserBalance(email string, balance float64) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "email_id", Value: email}}
	update := bson.M{"$set": bson.M{"wallet_bal": balance}}
	collection := connection.Database(m.database).Collection(collectionUsers)
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}

func (m *MongoDB) AddSession(session *models.Session) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)
	collection := connection.Database(m.database).Collection(collectionSessions)
	_, err = collection.InsertOne(m.ctx, session)
	return err
}

func (m *MongoDB) UpdateSession(session *models.Session) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "session_id", Value: session.SessionId}}
	update := bson.M{"$set": session}
	collection := connection.Database(m.database).Collection(collectionSessions)
	_, err = collection.UpdateOne(m.ctx, filter, update)
	return err
}

func (m *MongoDB) GetSession(sessionId string) (*models.Session, error) {
	return m.findSession(bson.D{{Key: "session_id", Value: sessionId}}, nil)
}

func (m *MongoDB) GetSessionByTransaction(transactionId string) (*models.Session, error) {
	return m.findSession(bson.D{{Key: "transaction_id", Value: transactionId}}, nil)
}

func (m *MongoDB) FindPendingSession(stationId string, connectorId int) (*models.Session, error) {
	filter := bson.D{
		{Key: "charger_id", Value: stationId},
		{Key: "connector_id", Value: connectorId},
		{Key: "status", Value: models.SessionStatusPending},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "start_time", Value: -1}})
	return m.findSession(filter, opts)
}

func (m *MongoDB) findSession(filter bson.D, opts *options.FindOneOptions) (*models.Session, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var session models.Session
	collection := connection.Database(m.database).Collection(collectionSessions)
	if opts != nil {
		err = collection.FindOne(m.ctx, filter, opts).Decode(&session)
	} else {
		err = collection.FindOne(m.ctx, filter).Decode(&session)
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (m *MongoDB) GetActiveSessions(stationId string) ([]*models.Session, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var sessions []*models.Session
	collection := connection.Database(m.database).Collection(collectionSessions)
	filter := bson.D{{Key: "charger_id", Value: stationId}, {Key: "status", Value: models.SessionStatusActive}}
	cursor, err := collection.Find(m.ctx, filter)
	if err != nil {
		return nil, err
	}
	if err = cursor.All(m.ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (m *MongoDB) GetTariff(id string) (*models.Tariff, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var tariff models.Tariff
	collection := connection.Database(m.database).Collection(collectionTariffs)
	filter := bson.D{{Key: "tariff_id", Value: id}}
	err = collection.FindOne(m.ctx, filter).Decode(&tariff)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &tariff, nil
}

func (m *MongoDB) AddLedgerEntry(entry *models.LedgerEntry) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)
	collection := connection.Database(m.database).Collection(collectionLedger)
	_, err = collection.InsertOne(m.ctx, entry)
	return err
}

func (m *MongoDB) GetLedgerEntry(transactionId string) (*models.LedgerEntry, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var entry models.LedgerEntry
	collection := connection.Database(m.database).Collection(collectionLedger)
	filter := bson.D{{Key: "transaction_id", Value: transactionId}}
	err = collection.FindOne(m.ctx, filter).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (m *MongoDB) GetSubscriptions() ([]models.UserSubscription, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var subscriptions []models.UserSubscription
	collection := connection.Database(m.database).Collection(collectionSubscriptions)
	cursor, err := collection.Find(m.ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	if err = cursor.All(m.ctx, &subscriptions); err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (m *MongoDB) AddSubscription(subscription *models.UserSubscription) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)
	collection := connection.Database(m.database).Collection(collectionSubscriptions)
	_, err = collection.InsertOne(m.ctx, subscription)
	return err
}

func (m *MongoDB) DeleteSubscription(subscription *models.UserSubscription) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)
	collection := connection.Database(m.database).Collection(collectionSubscriptions)
	filter := bson.D{{Key: "user_id", Value: subscription.UserID}}
	_, err = collection.DeleteOne(m.ctx, filter)
	return err
}
