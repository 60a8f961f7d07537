package inmemdb

import (
	"context"
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/caffeinepub/diploma-smart-study-hub/core/gallery"
)

type galleryRepository struct {
	db *DB
}

func NewGalleryRepository(db *DB) gallery.Repository {
	return &galleryRepository{db: db}
}

// withMedia must be called with the lock held.
func (repo *galleryRepository) withMedia(g gallery.Gallery) gallery.Gallery {
	g.Images = make([]gallery.Media, 0)
	g.Videos = make([]gallery.Media, 0)
	for _, m := range repo.db.media {
		if m.GalleryID != g.ID {
			continue
		}
		if m.Kind == gallery.KindVideo {
			g.Videos = append(g.Videos, *m)
		} else {
			g.Images = append(g.Images, *m)
		}
	}
	byCreation := func(media []gallery.Media) func(i, j int) bool {
		return func(i, j int) bool {
			if c := compareTimes(media[i].CreatedAt, media[j].CreatedAt); c != 0 {
				return c < 0
			}
			return media[i].ID < media[j].ID
		}
	}
	sort.Slice(g.Images, byCreation(g.Images))
	sort.Slice(g.Videos, byCreation(g.Videos))
	return g
}

func (repo *galleryRepository) CreateGallery(_ context.Context, g gallery.Gallery) (gallery.Gallery, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	g.Images, g.Videos = nil, nil
	repo.db.galleries[g.ID] = &g
	return repo.withMedia(g), nil
}

func (repo *galleryRepository) GetGallery(_ context.Context, id string) (gallery.Gallery, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if g, ok := repo.db.galleries[id]; ok {
		return repo.withMedia(*g), nil
	}
	return gallery.Gallery{}, gallery.ErrNotFound
}

func matches(field null.String, value string) bool {
	return value == "" || (field.Valid && field.String == value)
}

func (repo *galleryRepository) QueryGalleries(_ context.Context, filter gallery.CategoryFilter) ([]gallery.Gallery, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	galleries := make([]gallery.Gallery, 0)
	for _, g := range repo.db.galleries {
		if matches(g.Branch, filter.Branch) &&
			matches(g.Semester, filter.Semester) &&
			matches(g.Subject, filter.Subject) &&
			matches(g.Chapter, filter.Chapter) {
			galleries = append(galleries, repo.withMedia(*g))
		}
	}
	sort.Slice(galleries, func(i, j int) bool {
		if c := compareTimes(galleries[i].CreatedAt, galleries[j].CreatedAt); c != 0 {
			return c > 0
		}
		return galleries[i].ID < galleries[j].ID
	})
	return galleries, nil
}

func (repo *galleryRepository) DeleteGallery(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.galleries[id]; !ok {
		return gallery.ErrNotFound
	}
	for mID, m := range repo.db.media {
		if m.GalleryID == id {
			delete(repo.db.media, mID)
		}
	}
	delete(repo.db.galleries, id)
	return nil
}

func (repo *galleryRepository) AddMedia(_ context.Context, m gallery.Media) (gallery.Media, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.galleries[m.GalleryID]; !ok {
		return gallery.Media{}, gallery.ErrNotFound
	}
	repo.db.media[m.ID] = &m
	return m, nil
}

func (repo *galleryRepository) GetMedia(_ context.Context, galleryID, id string) (gallery.Media, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if m, ok := repo.db.media[id]; ok && m.GalleryID == galleryID {
		return *m, nil
	}
	return gallery.Media{}, gallery.ErrMediaNotFound
}

func (repo *galleryRepository) DeleteMedia(_ context.Context, galleryID, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if m, ok := repo.db.media[id]; !ok || m.GalleryID != galleryID {
		return gallery.ErrMediaNotFound
	}
	delete(repo.db.media, id)
	return nil
}
