package models

import (
	"encoding/json"
	"fmt"

	"github.com/listsync/internal/types"
)

// OperationPayload is the operation-specific data carried by an
// OperationRecord. Each operation type has exactly one payload struct so the
// executor can switch exhaustively instead of digging through loose maps.
type OperationPayload interface {
	OperationType() types.OperationType
}

// CreateListPayload carries the fields for a new remote list.
type CreateListPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    bool   `json:"isPublic"`
}

// UpdateListPayload carries metadata changes for an existing list. Nil
// fields are left untouched on the remote side.
type UpdateListPayload struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	IsPublic    *bool   `json:"isPublic,omitempty"`
}

// DeleteListPayload has no fields; the target list id lives on the record.
type DeleteListPayload struct{}

// ClearListPayload has no fields; the target list id lives on the record.
type ClearListPayload struct{}

// AddMoviePayload identifies the movie to append to the target list.
type AddMoviePayload struct {
	MovieID int64 `json:"movieId"`
}

// RemoveMoviePayload identifies the movie to remove from the target list.
type RemoveMoviePayload struct {
	MovieID int64 `json:"movieId"`
}

// TogglePrivacyPayload carries the desired visibility of the target list.
type TogglePrivacyPayload struct {
	IsPublic bool `json:"isPublic"`
}

func (CreateListPayload) OperationType() types.OperationType    { return types.OpCreateList }
func (UpdateListPayload) OperationType() types.OperationType    { return types.OpUpdateList }
func (DeleteListPayload) OperationType() types.OperationType    { return types.OpDeleteList }
func (ClearListPayload) OperationType() types.OperationType     { return types.OpClearList }
func (AddMoviePayload) OperationType() types.OperationType      { return types.OpAddMovie }
func (RemoveMoviePayload) OperationType() types.OperationType   { return types.OpRemoveMovie }
func (TogglePrivacyPayload) OperationType() types.OperationType { return types.OpTogglePrivacy }

// EncodePayload serializes a payload for storage in the payload JSONB column.
func EncodePayload(p OperationPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("payload cannot be nil")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", p.OperationType(), err)
	}
	return data, nil
}

// DecodePayload deserializes a stored payload according to the record's
// operation type.
func DecodePayload(opType types.OperationType, data []byte) (OperationPayload, error) {
	var (
		p   OperationPayload
		err error
	)

	switch opType {
	case types.OpCreateList:
		var v CreateListPayload
		err = json.Unmarshal(data, &v)
		p = v
	case types.OpUpdateList:
		var v UpdateListPayload
		err = json.Unmarshal(data, &v)
		p = v
	case types.OpDeleteList:
		var v DeleteListPayload
		err = json.Unmarshal(data, &v)
		p = v
	case types.OpClearList:
		var v ClearListPayload
		err = json.Unmarshal(data, &v)
		p = v
	case types.OpAddMovie:
		var v AddMoviePayload
		err = json.Unmarshal(data, &v)
		p = v
	case types.OpRemoveMovie:
		var v RemoveMoviePayload
		err = json.Unmarshal(data, &v)
		p = v
	case types.OpTogglePrivacy:
		var v TogglePrivacyPayload
		err = json.Unmarshal(data, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown operation type: %s", opType)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", opType, err)
	}

	return p, nil
}
