package generation

import (
	"time"

	"github.com/google/uuid"

	"github.com/artboard/server/internal/module/generation/descriptor"
	"github.com/artboard/server/internal/utils/pagination"
)

// CreateGenerationRequest starts one generation.
type CreateGenerationRequest struct {
	Prompt            string `json:"prompt" binding:"required,max=4000"`
	AspectRatio       string `json:"aspect_ratio" binding:"required,aspect_ratio"`
	ResolutionTier    string `json:"resolution_tier" binding:"omitempty,resolution_tier"`
	ReferenceImageURL string `json:"reference_image_url" binding:"omitempty,url,max=2048"`
	OutputKind        string `json:"output_kind" binding:"omitempty,output_kind"`
	OutputFormat      string `json:"output_format" binding:"omitempty,output_format"`
}

// ToInput converts the request to service input.
func (r *CreateGenerationRequest) ToInput(wait bool) *CreateInput {
	return &CreateInput{
		Prompt:            r.Prompt,
		AspectRatio:       descriptor.AspectRatio(r.AspectRatio),
		ResolutionTier:    descriptor.ResolutionTier(r.ResolutionTier),
		ReferenceImageURL: r.ReferenceImageURL,
		OutputKind:        OutputKind(r.OutputKind),
		OutputFormat:      r.OutputFormat,
		Wait:              wait,
	}
}

// CreateQuery holds create query parameters.
type CreateQuery struct {
	Wait bool `form:"wait"`
}

// GenerationResponse is a job as seen by its owner. Raw provider locators are
// not exposed.
type GenerationResponse struct {
	ID                uuid.UUID  `json:"id"`
	ProjectID         uuid.UUID  `json:"project_id"`
	Status            Status     `json:"status"`
	Prompt            string     `json:"prompt"`
	AspectRatio       string     `json:"aspect_ratio"`
	ResolutionTier    string     `json:"resolution_tier"`
	Width             int        `json:"width"`
	Height            int        `json:"height"`
	OutputKind        OutputKind `json:"output_kind"`
	OutputFormat      string     `json:"output_format"`
	ReferenceImageURL *string    `json:"reference_image_url,omitempty"`
	Provider          string     `json:"provider"`
	Funding           Funding    `json:"funding"`
	ImageURL          *string    `json:"image_url,omitempty"`
	ErrorKind         *ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ToResponse converts a job to its API form.
func (g *Generation) ToResponse() *GenerationResponse {
	return &GenerationResponse{
		ID:                g.ID,
		ProjectID:         g.ProjectID,
		Status:            g.Status,
		Prompt:            g.Prompt,
		AspectRatio:       g.AspectRatio,
		ResolutionTier:    g.ResolutionTier,
		Width:             g.Width,
		Height:            g.Height,
		OutputKind:        g.OutputKind,
		OutputFormat:      g.OutputFormat,
		ReferenceImageURL: g.ReferenceImageURL,
		Provider:          g.Provider,
		Funding:           g.Funding,
		ImageURL:          g.ImageURL,
		ErrorKind:         g.ErrorKind,
		ErrorMessage:      g.ErrorMessage,
		CreatedAt:         g.CreatedAt,
		UpdatedAt:         g.UpdatedAt,
	}
}

// ListGenerationsResponse is a page of jobs.
type ListGenerationsResponse struct {
	Generations []*GenerationResponse `json:"generations"`
	Pagination  pagination.PageInfo   `json:"pagination"`
}
