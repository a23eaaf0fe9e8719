package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Group names a subset of a board's items. Mentioning a group's name in a
// chat query scopes retrieval to its members. The template, when set, is
// surfaced to the model as the group's description.
type Group struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	BoardID   primitive.ObjectID   `bson:"board_id" json:"board_id"`
	Name      string               `bson:"name" json:"name"`
	ItemIDs   []primitive.ObjectID `bson:"item_ids" json:"item_ids"`
	Template  string               `bson:"template,omitempty" json:"template,omitempty"`
	CreatedAt time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time            `bson:"updated_at" json:"updated_at"`
}

// GroupCreateRequest creates a group from existing board items.
type GroupCreateRequest struct {
	Name     string   `json:"name" binding:"required,min=1,max=200"`
	ItemIDs  []string `json:"item_ids" binding:"required,min=1"`
	Template string   `json:"template,omitempty"`
}

// GroupUpdateRequest patches a group. Nil fields keep their value.
type GroupUpdateRequest struct {
	Name     *string   `json:"name,omitempty"`
	ItemIDs  *[]string `json:"item_ids,omitempty"`
	Template *string   `json:"template,omitempty"`
}
