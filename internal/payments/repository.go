package payments

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Create(ctx context.Context, payment Payment) error
	GetByID(ctx context.Context, id string) (Payment, error)
	GetByChargeID(ctx context.Context, chargeID string) (Payment, error)
	Update(ctx context.Context, id string, set bson.M) (Payment, error)
	ListByUser(ctx context.Context, userID string, limit, offset int64) ([]Payment, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, payment Payment) error {
	_, err := r.col.InsertOne(ctx, payment)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateCharge
	}
	return err
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (Payment, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRepository) GetByChargeID(ctx context.Context, chargeID string) (Payment, error) {
	return r.findOne(ctx, bson.M{"gatewayChargeId": chargeID})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (Payment, error) {
	var payment Payment
	if err := r.col.FindOne(ctx, filter).Decode(&payment); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, err
	}
	return payment, nil
}

func (r *MongoRepository) Update(ctx context.Context, id string, set bson.M) (Payment, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var payment Payment
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&payment); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, err
	}
	return payment, nil
}

func (r *MongoRepository) ListByUser(ctx context.Context, userID string, limit, offset int64) ([]Payment, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := r.col.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]Payment, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *MongoRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{"userId": userID})
}
