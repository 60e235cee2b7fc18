package repository

import (
	"context"
	"errors"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Resolution records how one platform of a post ended in a tick.
// An empty Link means the platform failed or was skipped.
type Resolution struct {
	Platform models.Platform
	Link     string
}

type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	ListUnposted(ctx context.Context, now time.Time) ([]models.Post, error)
	Finalize(ctx context.Context, postID int64, resolutions []Resolution) (*models.Post, error)
}

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	post.ScheduledOn = post.ScheduledOn.UTC()
	if post.PostTimezone == "" {
		post.PostTimezone = "UTC"
	}
	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		log.Error().Err(err).Int64("account_id", post.AccountID).Msg("create post")
		return err
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).First(&post, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		log.Error().Err(err).Int64("post_id", id).Msg("get post")
		return nil, err
	}
	return &post, nil
}

// ListUnposted returns posts not yet finalized whose scheduled instant is at
// or before now, oldest first.
func (r *postRepository) ListUnposted(ctx context.Context, now time.Time) ([]models.Post, error) {
	var posts []models.Post
	err := r.db.WithContext(ctx).
		Where("posted = ? AND scheduled_on <= ?", false, now.UTC()).
		Order("scheduled_on ASC").
		Order("id ASC").
		Find(&posts).Error
	if err != nil {
		log.Error().Err(err).Msg("list unposted posts")
		return nil, err
	}
	return posts, nil
}

// Finalize writes the tick's outcomes for one post in a single transaction.
// Each resolved platform gets its link (or null) and a cleared pending flag;
// posted flips to true once no selected platform is left pending.
func (r *postRepository) Finalize(ctx context.Context, postID int64, resolutions []Resolution) (*models.Post, error) {
	var out models.Post
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.First(&post, postID).Error; err != nil {
			return err
		}
		if post.Posted {
			out = post
			return nil
		}

		updates := map[string]any{}
		for _, res := range resolutions {
			if !res.Platform.Valid() {
				continue
			}
			post.SetPending(res.Platform, false)
			post.SetLink(res.Platform, res.Link)
			updates[models.PendingColumn(res.Platform)] = false
			if res.Link == "" {
				updates[models.LinkColumn(res.Platform)] = nil
			} else {
				updates[models.LinkColumn(res.Platform)] = res.Link
			}
		}
		if len(post.PendingPlatforms()) == 0 {
			post.Posted = true
			updates["posted"] = true
		}
		if len(updates) == 0 {
			out = post
			return nil
		}
		updates["updated_at"] = time.Now().UTC()

		if err := tx.Model(&models.Post{}).Where("id = ?", postID).Updates(updates).Error; err != nil {
			return err
		}
		out = post
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int64("post_id", postID).Msg("finalize post")
		return nil, err
	}
	return &out, nil
}
