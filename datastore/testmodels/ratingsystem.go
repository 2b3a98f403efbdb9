package testmodels

import (
	"github.com/go-openapi/strfmt"
	"github.com/suparena/docstore/registry"
)

type RatingSystem struct {

	// Unique identifier for the rating system.
	// Required: true
	ID string `dynamodbav:"id" json:"id"`

	// Owning tenant; first partition key component.
	// Required: true
	Tenant string `dynamodbav:"tenant" json:"tenant"`

	// Region; second partition key component.
	// Required: true
	Region string `dynamodbav:"region" json:"region"`

	// Name of the rating system.
	Name string `dynamodbav:"name" json:"name"`

	// A description of the rating system. Stored compressed.
	Description string `dynamodbav:"description,omitempty" json:"description,omitempty"`

	// Contact address of the maintainer.
	// Format: email
	Contact strfmt.Email `dynamodbav:"contact,omitempty" json:"contact,omitempty"`

	// Current score.
	Score int `dynamodbav:"score" json:"score"`

	// Free-form labels.
	Tags []string `dynamodbav:"tags,omitempty" json:"tags,omitempty"`

	// Tuning parameters, e.g. the K-factor.
	Settings map[string]int `dynamodbav:"settings,omitempty" json:"settings,omitempty"`
}

// RatingSystemDescriptor declares the storage schema of RatingSystem:
// partition key "tenant|region", compressed description, schema version 2.
func RatingSystemDescriptor() registry.Descriptor[RatingSystem] {
	return registry.Descriptor[RatingSystem]{
		Name: "RatingSystem",
		ID:   func(r RatingSystem) string { return r.ID },
		SetID: func(r *RatingSystem, id string) {
			r.ID = id
		},
		PartitionKey: []registry.Field[RatingSystem]{
			{Attribute: "tenant", Value: func(r RatingSystem) string { return r.Tenant }},
			{Attribute: "region", Value: func(r RatingSystem) string { return r.Region }},
		},
		Delimiter:     "|",
		SchemaVersion: 2,
		Compressed:    []string{"description"},
	}
}

// RatingSystemSchema builds the schema from RatingSystemDescriptor.
func RatingSystemSchema() *registry.Schema[RatingSystem] {
	s, err := registry.NewSchema(RatingSystemDescriptor())
	if err != nil {
		panic(err)
	}
	return s
}

// Player is a single-key entity: its partition key is the tenant alone.
type Player struct {
	ID     string `dynamodbav:"id" json:"id"`
	Tenant string `dynamodbav:"tenant" json:"tenant"`
	Name   string `dynamodbav:"name" json:"name"`
	Rating int    `dynamodbav:"rating" json:"rating"`
}

// PlayerSchema returns the schema of Player.
func PlayerSchema() *registry.Schema[Player] {
	s, err := registry.NewSchema(registry.Descriptor[Player]{
		Name: "Player",
		ID:   func(p Player) string { return p.ID },
		PartitionKey: []registry.Field[Player]{
			{Attribute: "tenant", Value: func(p Player) string { return p.Tenant }},
		},
	})
	if err != nil {
		panic(err)
	}
	return s
}
