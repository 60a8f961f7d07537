package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core/gallery"
)

const (
	galleryColumns = "id, title, description, branch, semester, subject, chapter, created_at, updated_at"
	mediaColumns   = "id, gallery_id, kind, file_name, content_type, size, blob_key, created_at"
)

type galleryRepository struct {
	repository
}

func NewGalleryRepository(db *sqlx.DB) gallery.Repository {
	return &galleryRepository{repository{db: db}}
}

// attachMedia loads the images & videos of galleries.
func (repo *galleryRepository) attachMedia(ctx context.Context, galleries []gallery.Gallery) error {
	if len(galleries) == 0 {
		return nil
	}
	ids := make([]string, 0, len(galleries))
	byID := make(map[string]*gallery.Gallery, len(galleries))
	for i := range galleries {
		g := &galleries[i]
		g.Images, g.Videos = make([]gallery.Media, 0), make([]gallery.Media, 0)
		ids = append(ids, g.ID)
		byID[g.ID] = g
	}

	q, args, err := repo.in("SELECT "+mediaColumns+" FROM gallery_media WHERE gallery_id IN (?) ORDER BY created_at, id", ids)
	if err != nil {
		return errors.Wrap(err, "building media query")
	}
	media := make([]gallery.Media, 0)
	if err = repo.db.SelectContext(ctx, &media, q, args...); err != nil {
		return errors.Wrap(err, "querying gallery media")
	}
	for _, m := range media {
		g := byID[m.GalleryID]
		if m.Kind == gallery.KindVideo {
			g.Videos = append(g.Videos, m)
		} else {
			g.Images = append(g.Images, m)
		}
	}
	return nil
}

func (repo *galleryRepository) CreateGallery(ctx context.Context, g gallery.Gallery) (gallery.Gallery, error) {
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO galleries (`+galleryColumns+`)
		VALUES (:id, :title, :description, :branch, :semester, :subject, :chapter, :created_at, :updated_at)`, g)
	if err != nil {
		return gallery.Gallery{}, errors.Wrap(err, "inserting gallery")
	}
	g.Images, g.Videos = make([]gallery.Media, 0), make([]gallery.Media, 0)
	return g, nil
}

func (repo *galleryRepository) GetGallery(ctx context.Context, id string) (gallery.Gallery, error) {
	var g gallery.Gallery
	if err := repo.get(ctx, &g, "SELECT "+galleryColumns+" FROM galleries WHERE id = ?", id); err != nil {
		return gallery.Gallery{}, trapNoRowsErr(err, gallery.ErrNotFound, "getting gallery")
	}
	galleries := []gallery.Gallery{g}
	if err := repo.attachMedia(ctx, galleries); err != nil {
		return gallery.Gallery{}, err
	}
	return galleries[0], nil
}

func (repo *galleryRepository) QueryGalleries(ctx context.Context, filter gallery.CategoryFilter) ([]gallery.Gallery, error) {
	conds := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	for _, f := range []struct{ column, value string }{
		{"branch", filter.Branch},
		{"semester", filter.Semester},
		{"subject", filter.Subject},
		{"chapter", filter.Chapter},
	} {
		if f.value != "" {
			conds = append(conds, f.column+" = ?")
			args = append(args, f.value)
		}
	}

	galleries := make([]gallery.Gallery, 0)
	q := "SELECT " + galleryColumns + " FROM galleries" + where(conds) + " ORDER BY created_at DESC, id"
	if err := repo.selectAll(ctx, &galleries, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying galleries")
	}
	if err := repo.attachMedia(ctx, galleries); err != nil {
		return nil, err
	}
	return galleries, nil
}

func (repo *galleryRepository) DeleteGallery(ctx context.Context, id string) error {
	return repo.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM gallery_media WHERE gallery_id = ?"), id); err != nil {
			return errors.Wrap(err, "deleting gallery media")
		}
		res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM galleries WHERE id = ?"), id)
		if err != nil {
			return errors.Wrap(err, "deleting gallery")
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return gallery.ErrNotFound
		}
		return nil
	})
}

func (repo *galleryRepository) AddMedia(ctx context.Context, m gallery.Media) (gallery.Media, error) {
	if _, err := repo.GetGallery(ctx, m.GalleryID); err != nil {
		return gallery.Media{}, err
	}
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO gallery_media (`+mediaColumns+`)
		VALUES (:id, :gallery_id, :kind, :file_name, :content_type, :size, :blob_key, :created_at)`, m)
	if err != nil {
		return gallery.Media{}, errors.Wrap(err, "inserting gallery media")
	}
	return m, nil
}

func (repo *galleryRepository) GetMedia(ctx context.Context, galleryID, id string) (gallery.Media, error) {
	var m gallery.Media
	err := repo.get(ctx, &m, "SELECT "+mediaColumns+" FROM gallery_media WHERE id = ? AND gallery_id = ?", id, galleryID)
	if err != nil {
		return gallery.Media{}, trapNoRowsErr(err, gallery.ErrMediaNotFound, "getting gallery media")
	}
	return m, nil
}

func (repo *galleryRepository) DeleteMedia(ctx context.Context, galleryID, id string) error {
	n, err := repo.exec(ctx, "DELETE FROM gallery_media WHERE id = ? AND gallery_id = ?", id, galleryID)
	if err != nil {
		return errors.Wrap(err, "deleting gallery media")
	}
	if n == 0 {
		return gallery.ErrMediaNotFound
	}
	return nil
}
