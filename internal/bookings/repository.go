package bookings

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Create(ctx context.Context, booking Booking) error
	GetByID(ctx context.Context, id string) (Booking, error)
	// Replace writes booking only if the stored version still equals expectedVersion.
	Replace(ctx context.Context, booking Booking, expectedVersion int64) error
	List(ctx context.Context, q ListQuery) ([]Booking, error)
	Count(ctx context.Context, filter ListFilter) (int64, error)
	CountAll(ctx context.Context) (int64, error)
	// Active returns the non-cancelled bookings of a service on a date.
	Active(ctx context.Context, serviceID, date string) ([]Booking, error)
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, booking Booking) error {
	_, err := r.col.InsertOne(ctx, booking)
	return err
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (Booking, error) {
	var booking Booking
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&booking); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Booking{}, ErrNotFound
		}
		return Booking{}, err
	}
	return booking, nil
}

func (r *MongoRepository) Replace(ctx context.Context, booking Booking, expectedVersion int64) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": booking.ID, "version": expectedVersion}, booking)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}

func (r *MongoRepository) List(ctx context.Context, q ListQuery) ([]Booking, error) {
	dir := 1
	if q.SortDesc {
		dir = -1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: q.SortField, Value: dir}, {Key: "_id", Value: dir}}).
		SetLimit(q.Limit).
		SetSkip(q.Offset)

	cursor, err := r.col.Find(ctx, filterToBSON(q.Filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]Booking, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *MongoRepository) Count(ctx context.Context, filter ListFilter) (int64, error) {
	return r.col.CountDocuments(ctx, filterToBSON(filter))
}

func (r *MongoRepository) CountAll(ctx context.Context) (int64, error) {
	return r.col.EstimatedDocumentCount(ctx)
}

func (r *MongoRepository) Active(ctx context.Context, serviceID, date string) ([]Booking, error) {
	cursor, err := r.col.Find(ctx, bson.M{
		"serviceId": serviceID,
		"date":      date,
		"status":    bson.M{"$ne": StatusCancelled},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]Booking, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func filterToBSON(filter ListFilter) bson.M {
	query := bson.M{}
	if filter.UserID != "" {
		query["userId"] = filter.UserID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.PaymentStatus != "" {
		query["paymentStatus"] = filter.PaymentStatus
	}
	if filter.ServiceID != "" {
		query["serviceId"] = filter.ServiceID
	}
	if filter.Date != "" {
		query["date"] = filter.Date
	}
	return query
}
