package fakestore

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/goccy/go-json"
	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/models"
)

// DefaultInboxType is the inbox a status is delivered to when none is named.
const DefaultInboxType = "default"

// PublishStatus delivers a copy of data to the inbox of every owner and returns the
// message ids assigned, in owner order.
func (s *Store) PublishStatus(source models.Pointer, inboxType string, data map[string]any, owners ...models.Pointer) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inboxType == "" {
		inboxType = DefaultInboxType
	}
	normalized, err := models.Normalize(data)
	if err != nil {
		panic("fakestore: PublishStatus: " + err.Error())
	}
	ids := make([]int, 0, len(owners))
	for _, owner := range owners {
		s.nextMessageID++
		rec := copyRecord(normalized.(map[string]any))
		rec["source"] = source.Encode()
		rec["owner"] = owner.Encode()
		rec["inboxType"] = inboxType
		rec["messageId"] = float64(s.nextMessageID)
		rec[constants.KeyObjectID] = statusID(s.nextMessageID)
		ts := s.timestamp()
		rec[constants.KeyCreatedAt] = ts
		rec[constants.KeyUpdatedAt] = ts
		s.insert(constants.ClassStatus, rec)
		ids = append(ids, s.nextMessageID)
	}
	return ids
}

func statusID(messageID int) string {
	return fmt.Sprintf("status%08d", messageID)
}

// inbox lists the statuses delivered to one owner, newest first.
func (s *Store) inbox(req *connection.Request) (any, int, error) {
	owner, err := ownerParam(req.Params["owner"])
	if err != nil {
		return nil, 0, err
	}
	inboxType, _ := req.Params["inboxType"].(string)
	if inboxType == "" {
		inboxType = DefaultInboxType
	}
	where, err := whereParam(req.Params)
	if err != nil {
		return nil, 0, err
	}
	sinceID := intParam(req.Params, "sinceId", 0)
	maxID := intParam(req.Params, "maxId", 0)

	rows, err := s.find(constants.ClassStatus, where)
	if err != nil {
		return nil, 0, err
	}
	matched := rows[:0:0]
	for _, rec := range rows {
		p, ok := pointerOf(rec["owner"])
		if !ok || p != owner || rec["inboxType"] != inboxType {
			continue
		}
		id := intParam(rec, "messageId", 0)
		if (sinceID > 0 && id <= sinceID) || (maxID > 0 && id > maxID) {
			continue
		}
		matched = append(matched, rec)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return intParam(matched[i], "messageId", 0) > intParam(matched[j], "messageId", 0)
	})

	body := map[string]any{}
	if v, ok := req.Params["count"]; ok && truthy(v) {
		body["count"] = len(matched)
	}
	limit := min(max(intParam(req.Params, "limit", constants.DefaultLimit), 0), constants.MaxLimit)
	matched = page(matched, 0, limit)

	keys := listParam(req.Params, "keys")
	include := listParam(req.Params, "include")
	results := make([]any, 0, len(matched))
	for _, rec := range matched {
		results = append(results, s.output(constants.ClassStatus, rec, keys, include))
	}
	body["results"] = results
	return body, http.StatusOK, nil
}

func ownerParam(raw any) (models.Pointer, error) {
	if str, ok := raw.(string); ok {
		if err := json.Unmarshal([]byte(str), &raw); err != nil {
			return models.Pointer{}, connection.Wrap(constants.InvalidQuery, err)
		}
	}
	normalized, err := models.Normalize(raw)
	if err != nil {
		return models.Pointer{}, connection.Wrap(constants.InvalidJSON, err)
	}
	p, ok := pointerOf(normalized)
	if !ok || p.ObjectID == "" {
		return models.Pointer{}, connection.NewError(constants.InvalidQuery, "inbox owner must be a user pointer")
	}
	return p, nil
}
