package catalog

import (
	"context"
	"errors"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Create(ctx context.Context, item Item) error
	GetByID(ctx context.Context, id string) (Item, error)
	GetBySlug(ctx context.Context, slug string) (Item, error)
	SlugTaken(ctx context.Context, slug, exceptID string) (bool, error)
	Update(ctx context.Context, id string, set bson.M) (Item, error)
	AddRating(ctx context.Context, id string, rating Rating) (Item, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, q ListQuery) ([]Item, error)
	Count(ctx context.Context, filter ListFilter) (int64, error)
	CountAll(ctx context.Context) (int64, error)
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, item Item) error {
	_, err := r.col.InsertOne(ctx, item)
	if mongo.IsDuplicateKeyError(err) {
		return ErrSlugExists
	}
	return err
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (Item, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRepository) GetBySlug(ctx context.Context, slug string) (Item, error) {
	return r.findOne(ctx, bson.M{"slug": slug})
}

func (r *MongoRepository) findOne(ctx context.Context, query bson.M) (Item, error) {
	var item Item
	if err := r.col.FindOne(ctx, query).Decode(&item); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (r *MongoRepository) SlugTaken(ctx context.Context, slug, exceptID string) (bool, error) {
	query := bson.M{"slug": slug}
	if exceptID != "" {
		query["_id"] = bson.M{"$ne": exceptID}
	}
	n, err := r.col.CountDocuments(ctx, query, options.Count().SetLimit(1))
	return n > 0, err
}

func (r *MongoRepository) Update(ctx context.Context, id string, set bson.M) (Item, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated Item
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Item{}, ErrNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return Item{}, ErrSlugExists
		}
		return Item{}, err
	}
	return updated, nil
}

// AddRating pushes rating and recomputes averageRating in one pipeline update.
func (r *MongoRepository) AddRating(ctx context.Context, id string, rating Rating) (Item, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"ratings": bson.M{"$concatArrays": bson.A{bson.M{"$ifNull": bson.A{"$ratings", bson.A{}}}, bson.A{rating}}},
		}}},
		{{Key: "$set", Value: bson.M{
			"averageRating": bson.M{"$avg": "$ratings.rating"},
			"updatedAt":     rating.Date,
		}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated Item
	if err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, pipeline, opts).Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	return updated, nil
}

func (r *MongoRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (r *MongoRepository) List(ctx context.Context, q ListQuery) ([]Item, error) {
	dir := 1
	if q.SortDesc {
		dir = -1
	}
	opts := options.Find().
		SetSort(bson.D{{Key: q.SortField, Value: dir}, {Key: "_id", Value: 1}}).
		SetLimit(q.Limit).
		SetSkip(q.Offset).
		SetProjection(bson.M{"ratings": 0})

	cursor, err := r.col.Find(ctx, filterToBSON(q.Filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]Item, 0)
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

func filterToBSON(filter ListFilter) bson.M {
	query := bson.M{}
	if filter.ActiveOnly {
		query["isActive"] = true
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.MinPrice != nil || filter.MaxPrice != nil {
		price := bson.M{}
		if filter.MinPrice != nil {
			price["$gte"] = *filter.MinPrice
		}
		if filter.MaxPrice != nil {
			price["$lte"] = *filter.MaxPrice
		}
		query["price"] = price
	}
	if filter.Search != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(filter.Search), "$options": "i"}
		query["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"description": pattern},
		}
	}
	return query
}
