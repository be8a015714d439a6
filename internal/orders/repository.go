package orders

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/Sahil123-FNO/plubming-backend/internal/db"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// writeConflictCode is the server code for a write that collided with another transaction.
const writeConflictCode = 112

type Repository interface {
	Create(ctx context.Context, order Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	// Replace writes order only if the stored version still equals expectedVersion.
	Replace(ctx context.Context, order Order, expectedVersion int64) error
	List(ctx context.Context, q ListQuery) ([]Order, error)
	Count(ctx context.Context, filter ListFilter) (int64, error)
	CountAll(ctx context.Context) (int64, error)
	GroupByStatus(ctx context.Context, from, to time.Time) ([]Bucket, error)
	GroupByPaymentMethod(ctx context.Context, from, to time.Time) ([]Bucket, error)
	Since(ctx context.Context, from time.Time) (DayStats, error)
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type MongoRepository struct {
	client *mongo.Client
	col    *mongo.Collection
}

func NewRepository(client *mongo.Client, col *mongo.Collection) *MongoRepository {
	return &MongoRepository{client: client, col: col}
}

func (r *MongoRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	err := db.RunInTransaction(ctx, r.client, fn)
	if isWriteConflict(err) {
		return ErrConflict
	}
	return err
}

func (r *MongoRepository) Create(ctx context.Context, order Order) error {
	_, err := r.col.InsertOne(ctx, order)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateNumber
	}
	return err
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (Order, error) {
	var order Order
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&order); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	return order, nil
}

func (r *MongoRepository) Replace(ctx context.Context, order Order, expectedVersion int64) error {
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": order.ID, "version": expectedVersion}, order)
	if err != nil {
		if isWriteConflict(err) {
			return ErrConflict
		}
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}

func (r *MongoRepository) List(ctx context.Context, q ListQuery) ([]Order, error) {
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

	items := make([]Order, 0)
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

func (r *MongoRepository) GroupByStatus(ctx context.Context, from, to time.Time) ([]Bucket, error) {
	return r.group(ctx, from, to, "$status")
}

func (r *MongoRepository) GroupByPaymentMethod(ctx context.Context, from, to time.Time) ([]Bucket, error) {
	return r.group(ctx, from, to, "$paymentDetails.method")
}

func (r *MongoRepository) group(ctx context.Context, from, to time.Time, key string) ([]Bucket, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"createdAt": bson.M{"$gte": from, "$lte": to}}}},
		{{Key: "$group", Value: bson.M{
			"_id":         key,
			"count":       bson.M{"$sum": 1},
			"totalAmount": bson.M{"$sum": "$totalAmount"},
		}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}

	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	buckets := make([]Bucket, 0)
	if err := cursor.All(ctx, &buckets); err != nil {
		return nil, err
	}
	return buckets, nil
}

func (r *MongoRepository) Since(ctx context.Context, from time.Time) (DayStats, error) {
	countIf := func(status Status) bson.M {
		return bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$status", status}}, 1, 0}}}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"createdAt": bson.M{"$gte": from}}}},
		{{Key: "$group", Value: bson.M{
			"_id":             nil,
			"totalOrders":     bson.M{"$sum": 1},
			"totalAmount":     bson.M{"$sum": "$totalAmount"},
			"completedOrders": countIf(StatusCompleted),
			"cancelledOrders": countIf(StatusCancelled),
		}}},
	}

	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return DayStats{}, err
	}
	defer cursor.Close(ctx)

	var stats DayStats
	if cursor.Next(ctx) {
		if err := cursor.Decode(&stats); err != nil {
			return DayStats{}, err
		}
	}
	return stats, cursor.Err()
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
		query["paymentDetails.status"] = filter.PaymentStatus
	}
	if filter.From != nil || filter.To != nil {
		created := bson.M{}
		if filter.From != nil {
			created["$gte"] = *filter.From
		}
		if filter.To != nil {
			created["$lte"] = *filter.To
		}
		query["createdAt"] = created
	}
	if filter.Search != "" {
		pattern := caseInsensitive(filter.Search)
		query["$or"] = bson.A{
			bson.M{"orderNumber": pattern},
			bson.M{"items.name": pattern},
		}
	}
	return query
}

func caseInsensitive(search string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(search), "$options": "i"}
}

func isWriteConflict(err error) bool {
	if err == nil {
		return false
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorCode(writeConflictCode) || se.HasErrorLabel("TransientTransactionError")
	}
	return false
}
