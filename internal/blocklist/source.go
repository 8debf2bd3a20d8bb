package blocklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"phishguard/internal/docstore"
)

// LinksCollection holds one document per blocked host in its url field.
const LinksCollection = "phishing_links"

// ErrMalformedList is returned for a response without a documents array.
var ErrMalformedList = errors.New("malformed block list response")

// Source yields the raw block list entries.
type Source interface {
	Fetch(ctx context.Context) ([]string, error)
}

// FirestoreSource reads a collection through the Firestore REST API.
type FirestoreSource struct {
	client *resty.Client
	url    string
}

type firestoreValue struct {
	StringValue *string `json:"stringValue"`
}

type firestoreDocument struct {
	Fields map[string]firestoreValue `json:"fields"`
}

type firestoreList struct {
	Documents     *[]firestoreDocument `json:"documents"`
	NextPageToken string               `json:"nextPageToken"`
}

// NewFirestoreSource creates a source for a documents URL such as
// https://firestore.googleapis.com/v1/projects/<p>/databases/(default)/documents/phishing_links.
func NewFirestoreSource(documentsURL string, timeout time.Duration) *FirestoreSource {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &FirestoreSource{client: client, url: documentsURL}
}

// Fetch reads every page of the collection.
func (s *FirestoreSource) Fetch(ctx context.Context) ([]string, error) {
	var entries []string
	pageToken := ""
	for {
		var page firestoreList
		req := s.client.R().SetContext(ctx).SetResult(&page)
		if pageToken != "" {
			req.SetQueryParam("pageToken", pageToken)
		}

		resp, err := req.Get(s.url)
		if err != nil {
			return nil, fmt.Errorf("failed to send request: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("block list source returned status %d", resp.StatusCode())
		}
		if page.Documents == nil {
			return nil, ErrMalformedList
		}

		for _, doc := range *page.Documents {
			if v, ok := doc.Fields["url"]; ok && v.StringValue != nil {
				entries = append(entries, *v.StringValue)
			}
		}

		if page.NextPageToken == "" {
			return entries, nil
		}
		pageToken = page.NextPageToken
	}
}

// DocstoreSource reads the block list from the node's own document store.
type DocstoreSource struct {
	store docstore.Store
}

func NewDocstoreSource(store docstore.Store) *DocstoreSource {
	return &DocstoreSource{store: store}
}

func (s *DocstoreSource) Fetch(ctx context.Context) ([]string, error) {
	docs, err := s.store.List(ctx, docstore.Query{Collection: LinksCollection})
	if err != nil {
		return nil, err
	}
	entries := make([]string, 0, len(docs))
	for _, doc := range docs {
		if u, ok := doc.Data["url"].(string); ok {
			entries = append(entries, u)
		}
	}
	return entries, nil
}
