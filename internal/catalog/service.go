package catalog

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound        = errors.New("item not found")
	ErrSlugExists      = errors.New("slug already exists")
	ErrInvalidSlug     = errors.New("name does not produce a valid slug")
	ErrInvalidCategory = errors.New("invalid category")
	ErrDurationMissing = errors.New("duration is required for services")
	ErrNotRateable     = errors.New("only services can be rated")
	ErrInvalidImage    = errors.New("invalid image")
)

type Service struct {
	kind     Kind
	repo     Repository
	images   *ImageStore
	location *time.Location
	now      func() time.Time
}

func NewService(kind Kind, repo Repository, images *ImageStore, location *time.Location) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{
		kind:     kind,
		repo:     repo,
		images:   images,
		location: location,
		now:      time.Now,
	}
}

func (s *Service) Kind() Kind { return s.kind }

func (s *Service) Create(ctx context.Context, req UpsertRequest, actorID string) (Item, error) {
	if err := s.checkKindFields(req, true); err != nil {
		return Item{}, err
	}

	slug, err := uniqueSlug(ctx, req.Name, func(ctx context.Context, slug string) (bool, error) {
		return s.repo.SlugTaken(ctx, slug, "")
	})
	if err != nil {
		return Item{}, err
	}

	now := s.now().In(s.location)
	item := Item{
		ID:          primitive.NewObjectID().Hex(),
		Kind:        s.kind,
		Name:        strings.TrimSpace(req.Name),
		Slug:        slug,
		Description: strings.TrimSpace(req.Description),
		Price:       *req.Price,
		Category:    strings.ToLower(strings.TrimSpace(req.Category)),
		Image:       strings.TrimSpace(req.Image),
		IsActive:    boolOr(req.IsActive, true),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	switch s.kind {
	case KindProduct:
		stock := 0
		if req.Stock != nil {
			stock = *req.Stock
		}
		item.Stock = &stock
		item.Sizes = trimAll(req.Sizes)
		item.Pincodes = trimAll(req.Pincodes)
	case KindService:
		item.Duration = *req.Duration
		item.Availability = boolOr(req.Availability, true)
		item.CreatedBy = actorID
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return Item{}, err
	}
	return item, nil
}

func (s *Service) Update(ctx context.Context, id string, req UpsertRequest) (Item, error) {
	id = strings.TrimSpace(id)
	if err := s.checkKindFields(req, false); err != nil {
		return Item{}, err
	}
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Item{}, err
	}

	set := bson.M{
		"name":        strings.TrimSpace(req.Name),
		"description": strings.TrimSpace(req.Description),
		"price":       *req.Price,
		"category":    strings.ToLower(strings.TrimSpace(req.Category)),
		"updatedAt":   s.now().In(s.location),
	}
	if strings.TrimSpace(req.Name) != current.Name {
		slug, err := uniqueSlug(ctx, req.Name, func(ctx context.Context, slug string) (bool, error) {
			return s.repo.SlugTaken(ctx, slug, id)
		})
		if err != nil {
			return Item{}, err
		}
		set["slug"] = slug
	}
	if img := strings.TrimSpace(req.Image); img != "" {
		set["image"] = img
	}
	if req.IsActive != nil {
		set["isActive"] = *req.IsActive
	}
	switch s.kind {
	case KindProduct:
		if req.Stock != nil {
			set["stock"] = *req.Stock
		}
		if req.Sizes != nil {
			set["sizes"] = trimAll(req.Sizes)
		}
		if req.Pincodes != nil {
			set["pincodes"] = trimAll(req.Pincodes)
		}
	case KindService:
		if req.Duration != nil {
			set["duration"] = *req.Duration
		}
		if req.Availability != nil {
			set["availability"] = *req.Availability
		}
	}

	return s.repo.Update(ctx, id, set)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	deleted, err := s.repo.Delete(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func (s *Service) ToggleStatus(ctx context.Context, id string) (Item, error) {
	id = strings.TrimSpace(id)
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Item{}, err
	}
	return s.repo.Update(ctx, id, bson.M{
		"isActive":  !item.IsActive,
		"updatedAt": s.now().In(s.location),
	})
}

// Get resolves idOrSlug as an id first and falls back to a slug lookup.
func (s *Service) Get(ctx context.Context, idOrSlug string) (Item, error) {
	idOrSlug = strings.TrimSpace(idOrSlug)
	if primitive.IsValidObjectID(idOrSlug) {
		item, err := s.repo.GetByID(ctx, idOrSlug)
		if !errors.Is(err, ErrNotFound) {
			return item, err
		}
	}
	return s.repo.GetBySlug(ctx, idOrSlug)
}

// GetPublic hides inactive items from anonymous callers.
func (s *Service) GetPublic(ctx context.Context, idOrSlug string) (Item, error) {
	item, err := s.Get(ctx, idOrSlug)
	if err != nil {
		return Item{}, err
	}
	if !item.IsActive {
		return Item{}, ErrNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, q ListQuery) ([]Item, int64, error) {
	q.Filter.Category = strings.ToLower(strings.TrimSpace(q.Filter.Category))
	if s.kind == KindService && q.Filter.Category != "" && !slices.Contains(ServiceCategories, q.Filter.Category) {
		return nil, 0, ErrInvalidCategory
	}
	if q.SortField == "" {
		q.SortField = "createdAt"
		q.SortDesc = true
	}

	items, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, q.Filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) Rate(ctx context.Context, id, userID string, req RatingRequest) (Item, error) {
	if s.kind != KindService {
		return Item{}, ErrNotRateable
	}
	return s.repo.AddRating(ctx, strings.TrimSpace(id), Rating{
		UserID: userID,
		Rating: req.Rating,
		Review: strings.TrimSpace(req.Review),
		Date:   s.now().In(s.location),
	})
}

func (s *Service) UploadImage(ctx context.Context, id string, src io.Reader) (Item, error) {
	id = strings.TrimSpace(id)
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return Item{}, err
	}
	url, err := s.images.Save(s.kind, id, src)
	if err != nil {
		return Item{}, err
	}
	return s.repo.Update(ctx, id, bson.M{
		"image":     url,
		"updatedAt": s.now().In(s.location),
	})
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.repo.CountAll(ctx)
}

func (s *Service) checkKindFields(req UpsertRequest, creating bool) error {
	if s.kind != KindService {
		return nil
	}
	if creating && req.Duration == nil {
		return ErrDurationMissing
	}
	category := strings.ToLower(strings.TrimSpace(req.Category))
	if !slices.Contains(ServiceCategories, category) {
		return ErrInvalidCategory
	}
	return nil
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
