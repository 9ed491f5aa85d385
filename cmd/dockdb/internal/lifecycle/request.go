// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/records"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/runspec"
	"github.com/AleutianAI/dockdb/pkg/validation"
)

// requestValidate is the validator for create and update requests.
// Initialized in init() with the custom validators.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	_ = requestValidate.RegisterValidation("containername", validateContainerName)
	_ = requestValidate.RegisterValidation("dbkind", validateKind)
	_ = requestValidate.RegisterValidation("imagetag", validateImageTag)
}

func validateContainerName(fl validator.FieldLevel) bool {
	return validation.ValidateContainerName(fl.Field().String()) == nil
}

func validateImageTag(fl validator.FieldLevel) bool {
	return validation.ValidateImageTag(fl.Field().String()) == nil
}

func validateKind(fl validator.FieldLevel) bool {
	return records.Kind(fl.Field().String()).Valid()
}

// Metadata is the bookkeeping half of a request: what the record will
// store, independent of how the container is run.
type Metadata struct {
	// ID is the logical record id. Create assigns one when empty; Update
	// ignores it.
	ID string `json:"id"`

	Kind     records.Kind `json:"dbType" validate:"required,dbkind"`
	Version  string       `json:"version" validate:"required,imagetag"`
	Port     int          `json:"port" validate:"required,min=1,max=65535"`
	Username *string      `json:"username,omitempty"`
	Password string       `json:"password" validate:"required"`

	DatabaseName *string `json:"databaseName,omitempty"`
	PersistData  bool    `json:"persistData"`
	EnableAuth   bool    `json:"enableAuth"`

	// MaxConnections is advisory and never passed to the engine.
	MaxConnections *int `json:"maxConnections,omitempty" validate:"omitempty,min=1"`
}

// Request creates or updates a database.
//
// # Description
//
// Spec is the fully resolved run specification; Metadata duplicates the
// port so that "has the port changed" never depends on parsing Spec. The
// two must agree: Metadata.Port must be published by Spec.
type Request struct {
	Name     string          `json:"name" validate:"required,max=128,containername"`
	Spec     runspec.RunSpec `json:"dockerArgs"`
	Metadata Metadata        `json:"metadata"`
}

// Validate checks r before any engine call.
//
// # Outputs
//
//   - error: *apperr.Error of TypeConfiguration naming every invalid field,
//     or nil.
func (r Request) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return apperr.Configuration("Invalid request: %s", describe(verrs))
		}
		return apperr.Configuration("Invalid request: %v", err)
	}
	if !r.Spec.PublishesHostPort(r.Metadata.Port) {
		return apperr.Configuration("Invalid request: port %d is not published by the run specification", r.Metadata.Port)
	}
	return r.validateVolumes()
}

// validateVolumes requires the mounts to match the persistence flag: a
// persistent database mounts exactly its data volume, any other mounts
// nothing.
func (r Request) validateVolumes() error {
	names := r.Spec.VolumeNames()
	if !r.Metadata.PersistData {
		if len(names) > 0 {
			return apperr.Configuration("Invalid request: volumes %v are mounted but persistence is disabled", names)
		}
		return nil
	}
	want := records.VolumeName(r.Name)
	if len(names) != 1 || names[0] != want {
		return apperr.Configuration("Invalid request: a persistent database must mount exactly volume %q, got %v", want, names)
	}
	return nil
}

func describe(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Request.")
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "containername":
			parts = append(parts, fmt.Sprintf("%s %q is not a valid container name", field, fe.Value()))
		case "imagetag":
			parts = append(parts, fmt.Sprintf("%s %q is not a valid image tag", field, fe.Value()))
		case "dbkind":
			parts = append(parts, fmt.Sprintf("Unsupported database type: %q", fe.Value()))
		default:
			parts = append(parts, fmt.Sprintf("%s fails %s=%s", field, fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(parts, "; ")
}

// RequestFromConfig builds a Request from a kind-aware configuration using
// the kind's defaults (image, port, data path, environment, command).
func RequestFromConfig(id string, cfg runspec.Config, maxConnections *int) (Request, error) {
	spec, err := runspec.FromConfig(cfg)
	if err != nil {
		return Request{}, err
	}
	return Request{
		Name: cfg.Name,
		Spec: spec,
		Metadata: Metadata{
			ID:             id,
			Kind:           cfg.Kind,
			Version:        cfg.Version,
			Port:           cfg.Port,
			Username:       records.StringPtr(cfg.Username),
			Password:       cfg.Password,
			DatabaseName:   records.StringPtr(cfg.DatabaseName),
			PersistData:    cfg.PersistData,
			EnableAuth:     cfg.EnableAuth,
			MaxConnections: maxConnections,
		},
	}, nil
}
