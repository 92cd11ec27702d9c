package project

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type memoryRepo map[uuid.UUID]*Project

func (m memoryRepo) Get(ctx context.Context, id uuid.UUID) (*Project, error) {
	p, ok := m[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return p, nil
}

func TestOwnership_Verify(t *testing.T) {
	owner, stranger := uuid.New(), uuid.New()
	p := &Project{ID: uuid.New(), UserID: owner, Name: "moodboard"}
	o := NewOwnership(memoryRepo{p.ID: p})
	ctx := context.Background()

	assert.NoError(t, o.Verify(ctx, owner, p.ID))

	err := o.Verify(ctx, stranger, p.ID)
	assert.ErrorIs(t, err, ErrProjectNotFound)
	assert.ErrorIs(t, err, ErrNotOwner)

	assert.ErrorIs(t, o.Verify(ctx, owner, uuid.New()), ErrProjectNotFound)
}
