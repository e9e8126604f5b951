package es

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mfa-service/internal/client"
	"mfa-service/internal/models"
	"mfa-service/internal/util"
)

// UserDoc is the directory projection of a profile, denormalized for
// admin listing and free-text search.
type UserDoc struct {
	UserID        string     `json:"user_id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Phone         string     `json:"phone"`
	Status        string     `json:"status"`
	EmailVerified bool       `json:"email_verified"`
	PhoneVerified bool       `json:"phone_verified"`
	MFAType       string     `json:"mfa_type"`
	CreatedAt     time.Time  `json:"created_at"`
	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
	ActivatedBy   string     `json:"activated_by,omitempty"`
}

// UserIndex keeps the Elasticsearch projection of the profile store.
// Writes are best-effort; the Scylla row is the source of truth.
type UserIndex struct {
	client *client.ESClient
	index  string
}

func NewUserIndex(esClient *client.ESClient, index string) *UserIndex {
	return &UserIndex{
		client: esClient,
		index:  index,
	}
}

func docFromUser(user *models.User) UserDoc {
	return UserDoc{
		UserID:        user.UserID,
		Username:      user.Username,
		Email:         user.Email,
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		Phone:         user.FullPhone(),
		Status:        string(user.Status),
		EmailVerified: user.EmailVerified,
		PhoneVerified: user.PhoneVerified,
		MFAType:       user.MFAType,
		CreatedAt:     user.CreatedAt,
		ActivatedAt:   user.ActivatedAt,
		ActivatedBy:   user.ActivatedBy,
	}
}

// IndexUser upserts the projection. Failures are logged, not returned:
// a stale directory entry is preferable to a failed signup.
func (i *UserIndex) IndexUser(ctx context.Context, user *models.User) {
	if i.client == nil {
		return
	}
	res, err := i.client.IndexDocument(ctx, i.index, user.UserID, docFromUser(user))
	if err != nil {
		util.Warn("failed to index user", zap.String("user_id", user.UserID), zap.Error(err))
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		util.Warn("user index write rejected",
			zap.String("user_id", user.UserID),
			zap.String("status", res.Status()))
	}
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source UserDoc `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchUsers lists profiles, optionally filtered by status and a
// free-text query over names, username and email.
func (i *UserIndex) SearchUsers(ctx context.Context, status, query string, limit int) ([]UserDoc, int, error) {
	if i.client == nil {
		return nil, 0, fmt.Errorf("user search is unavailable")
	}
	if limit <= 0 {
		limit = 100
	}

	must := make([]map[string]interface{}, 0, 2)
	if status != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"status.keyword": status},
		})
	}
	if query != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"username", "email", "first_name", "last_name"},
			},
		})
	}

	body := map[string]interface{}{
		"size": limit,
		"sort": []map[string]interface{}{
			{"created_at": map[string]interface{}{"order": "desc"}},
		},
	}
	if len(must) > 0 {
		body["query"] = map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		}
	} else {
		body["query"] = map[string]interface{}{"match_all": map[string]interface{}{}}
	}

	res, err := i.client.Search(ctx, i.index, body)
	if err != nil {
		return nil, 0, fmt.Errorf("user search failed: %w", err)
	}

	var parsed searchResponse
	if err := i.client.ParseResponse(res, &parsed); err != nil {
		return nil, 0, fmt.Errorf("user search failed: %w", err)
	}

	docs := make([]UserDoc, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		docs = append(docs, hit.Source)
	}
	return docs, parsed.Hits.Total.Value, nil
}
