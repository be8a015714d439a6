package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/Sahil123-FNO/plubming-backend/internal/auth"
	"github.com/Sahil123-FNO/plubming-backend/internal/catalog"
	"github.com/Sahil123-FNO/plubming-backend/internal/config"
	"github.com/Sahil123-FNO/plubming-backend/internal/db"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type seedItem struct {
	Name        string
	Description string
	Category    string
	Price       float64
	Stock       int
	Duration    int
}

var products = []seedItem{
	{Name: "PVC Pipe 1 inch (3m)", Description: "Schedule 40 PVC pipe for cold water lines.", Category: "pipes", Price: 349, Stock: 120},
	{Name: "Brass Ball Valve 1/2 inch", Description: "Quarter-turn shut-off valve.", Category: "valves", Price: 289, Stock: 60},
	{Name: "Kitchen Sink Mixer", Description: "Wall-mounted mixer with swivel spout.", Category: "fixtures", Price: 2499, Stock: 15},
	{Name: "Teflon Tape", Description: "PTFE thread seal tape, 10m roll.", Category: "accessories", Price: 35, Stock: 500},
}

var services = []seedItem{
	{Name: "Leak Repair", Description: "Locate and fix a leaking pipe or joint.", Category: "other", Price: 499, Duration: 60},
	{Name: "Drain Unclogging", Description: "Clear a blocked sink, shower or floor drain.", Category: "other", Price: 399, Duration: 30},
	{Name: "Water Heater Installation", Description: "Mount and connect a storage water heater.", Category: "other", Price: 1499, Duration: 120},
	{Name: "Bathroom Fitting", Description: "Install taps, showers and a WC for one bathroom.", Category: "other", Price: 3999, Duration: 240},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, cols, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Disconnect(context.Background())

	if err := db.EnsureIndexes(ctx, cols); err != nil {
		log.Fatal(err)
	}

	adminID, err := seedAdminUser(ctx, cols.Users, envOrDefault("ADMIN_NAME", "Admin"), envOrDefault("ADMIN_EMAIL", "admin@example.com"), os.Getenv("ADMIN_PASSWORD"), cfg.Timezone)
	if err != nil {
		log.Fatalf("seed admin error: %v", err)
	}

	productCatalog := catalog.NewService(catalog.KindProduct, catalog.NewRepository(cols.Products), nil, cfg.Timezone)
	serviceCatalog := catalog.NewService(catalog.KindService, catalog.NewRepository(cols.Services), nil, cfg.Timezone)

	for _, p := range products {
		if err := seedCatalogItem(ctx, productCatalog, p, adminID); err != nil {
			log.Fatalf("seed product error for %s: %v", p.Name, err)
		}
	}
	for _, s := range services {
		if err := seedCatalogItem(ctx, serviceCatalog, s, adminID); err != nil {
			log.Fatalf("seed service error for %s: %v", s.Name, err)
		}
	}

	log.Println("seed completed")
}

// seedCatalogItem creates the item unless one with the same slug already exists.
func seedCatalogItem(ctx context.Context, svc *catalog.Service, item seedItem, actorID string) error {
	_, err := svc.Get(ctx, catalog.Slugify(item.Name))
	if err == nil {
		return nil
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return err
	}

	req := catalog.UpsertRequest{
		Name:        item.Name,
		Description: item.Description,
		Price:       &item.Price,
		Category:    item.Category,
	}
	if svc.Kind() == catalog.KindProduct {
		req.Stock = &item.Stock
	} else {
		req.Duration = &item.Duration
	}
	_, err = svc.Create(ctx, req, actorID)
	return err
}

// seedAdminUser upserts a verified admin by email and returns its id. Without a
// password an existing admin is looked up but never created.
func seedAdminUser(ctx context.Context, col *mongo.Collection, name, email, password string, loc *time.Location) (string, error) {
	if password == "" {
		log.Printf("seed admin: ADMIN_PASSWORD missing, skipping (%s)", email)
		var existing struct {
			ID string `bson:"_id"`
		}
		err := col.FindOne(ctx, bson.M{"email": email}).Decode(&existing)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", nil
		}
		return existing.ID, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", err
	}
	now := time.Now().In(loc)
	update := bson.M{
		"$set": bson.M{
			"password":   hash,
			"role":       auth.RoleAdmin,
			"isVerified": true,
			"isActive":   true,
			"updatedAt":  now,
		},
		"$setOnInsert": bson.M{
			"_id":       primitive.NewObjectID().Hex(),
			"email":     email,
			"name":      name,
			"createdAt": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc struct {
		ID string `bson:"_id"`
	}
	if err := col.FindOneAndUpdate(ctx, bson.M{"email": email}, update, opts).Decode(&doc); err != nil {
		return "", err
	}
	return doc.ID, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
