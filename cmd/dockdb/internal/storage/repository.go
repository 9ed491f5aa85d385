// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"encoding/json"

	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/apperr"
	"github.com/AleutianAI/dockdb/cmd/dockdb/internal/records"
)

// RecordsKey is the store key holding the record set.
const RecordsKey = "databases"

// Repository loads and saves the record set as a JSON array under
// RecordsKey.
type Repository struct {
	store Store
}

// NewRepository wraps store.
func NewRepository(store Store) *Repository {
	return &Repository{store: store}
}

// Load returns the saved records, or none when nothing was saved yet.
func (r *Repository) Load(ctx context.Context) ([]records.Record, error) {
	raw, found, err := r.store.Load(ctx, RecordsKey)
	if err != nil {
		return nil, apperr.Persistence("Error loading configuration", err)
	}
	if !found || len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var out []records.Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Persistence("Error loading configuration", err)
	}
	return out, nil
}

// Save replaces the saved records with rs.
func (r *Repository) Save(ctx context.Context, rs []records.Record) error {
	if rs == nil {
		rs = []records.Record{}
	}
	raw, err := json.Marshal(rs)
	if err != nil {
		return apperr.Persistence("Error saving configuration", err)
	}
	if err := r.store.Save(ctx, RecordsKey, raw); err != nil {
		return apperr.Persistence("Error saving configuration", err)
	}
	return nil
}
