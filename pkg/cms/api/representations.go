package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms"
	"github.com/MohamadKamardin1/zrcp-backend/pkg/cms/urlstrategy"
)

// ImageResponse is the response body for an image asset or content image
type ImageResponse struct {
	ID      int64   `json:"id"`
	File    *string `json:"file"`
	AltText string  `json:"alt_text"`
}

// BlogResponse is the response body for a blog
type BlogResponse struct {
	ID            int64           `json:"id"`
	Title         string          `json:"title"`
	Slug          string          `json:"slug"`
	Author        *int64          `json:"author"`
	AuthorName    string          `json:"author_name"`
	FeaturedImage *ImageResponse  `json:"featured_image"`
	Summary       string          `json:"summary"`
	Body          json.RawMessage `json:"body"`
	Status        cms.Status      `json:"status"`
	PublishedAt   *time.Time      `json:"published_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ResearchResponse is the response body for a research item
type ResearchResponse struct {
	ID            int64          `json:"id"`
	Title         string         `json:"title"`
	Slug          string         `json:"slug"`
	FeaturedImage *ImageResponse `json:"featured_image"`
	Description   string         `json:"description"`
	Status        cms.Status     `json:"status"`
	File          *string        `json:"file"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (s *Server) imageResponse(ctx context.Context, img *cms.Image) (*ImageResponse, error) {
	if img == nil {
		return nil, nil
	}
	file, err := urlstrategy.Nullable(ctx, s.urls, img.File)
	if err != nil {
		return nil, err
	}
	return &ImageResponse{ID: img.ID, File: file, AltText: img.AltText}, nil
}

func (s *Server) blogResponse(ctx context.Context, b *cms.Blog) (*BlogResponse, error) {
	featured, err := s.imageResponse(ctx, b.FeaturedImage)
	if err != nil {
		return nil, err
	}
	body := b.Body
	if len(body) == 0 {
		body = json.RawMessage(`[]`)
	}
	return &BlogResponse{
		ID:            b.ID,
		Title:         b.Title,
		Slug:          b.Slug,
		Author:        b.AuthorID,
		AuthorName:    b.AuthorName,
		FeaturedImage: featured,
		Summary:       b.Summary,
		Body:          body,
		Status:        b.Status,
		PublishedAt:   b.PublishedAt,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}, nil
}

func (s *Server) researchResponse(ctx context.Context, res *cms.Research) (*ResearchResponse, error) {
	featured, err := s.imageResponse(ctx, res.FeaturedImage)
	if err != nil {
		return nil, err
	}
	file, err := urlstrategy.Nullable(ctx, s.urls, res.File)
	if err != nil {
		return nil, err
	}
	return &ResearchResponse{
		ID:            res.ID,
		Title:         res.Title,
		Slug:          res.Slug,
		FeaturedImage: featured,
		Description:   res.Description,
		Status:        res.Status,
		File:          file,
		CreatedAt:     res.CreatedAt,
		UpdatedAt:     res.UpdatedAt,
	}, nil
}
