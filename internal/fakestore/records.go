package fakestore

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/leanstore/leanstore.go/internal/rand"
	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/models"
	"github.com/leanstore/leanstore.go/pkg/op"
)

var classNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// hiddenFields are stored but never returned.
var hiddenFields = []string{"password"}

type class struct {
	records map[string]map[string]any
	order   []string
}

func (c *class) all() []map[string]any {
	out := make([]map[string]any, 0, len(c.records))
	for _, id := range c.order {
		if rec, ok := c.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out
}

func (s *Store) class(name string) *class {
	c, ok := s.classes[name]
	if !ok {
		c = &class{records: make(map[string]map[string]any)}
		s.classes[name] = c
	}
	return c
}

func (s *Store) lookup(className, objectID string) (map[string]any, bool) {
	c, ok := s.classes[className]
	if !ok {
		return nil, false
	}
	rec, ok := c.records[objectID]
	return rec, ok
}

func (s *Store) insert(className string, rec map[string]any) {
	c := s.class(className)
	id := rec[constants.KeyObjectID].(string)
	if _, exists := c.records[id]; !exists {
		c.order = append(c.order, id)
	}
	c.records[id] = rec
}

// now returns strictly increasing timestamps so that createdAt orders records.
func (s *Store) now() time.Time {
	t := time.Now().UTC().Truncate(time.Millisecond)
	if !t.After(s.lastTime) {
		t = s.lastTime.Add(time.Millisecond)
	}
	s.lastTime = t
	return t
}

func (s *Store) timestamp() string {
	return models.NewDate(s.now()).String()
}

// Put stores rec as-is in className, assigning an id and timestamps when missing,
// and returns the stored id.
func (s *Store) Put(className string, rec map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized, err := models.Normalize(rec)
	if err != nil {
		panic(fmt.Sprintf("fakestore: Put: %v", err))
	}
	stored := normalized.(map[string]any)
	if _, ok := stored[constants.KeyObjectID].(string); !ok {
		stored[constants.KeyObjectID] = rand.NewObjectID()
	}
	ts := s.timestamp()
	if _, ok := stored[constants.KeyCreatedAt]; !ok {
		stored[constants.KeyCreatedAt] = ts
	}
	if _, ok := stored[constants.KeyUpdatedAt]; !ok {
		stored[constants.KeyUpdatedAt] = ts
	}
	s.insert(className, stored)
	return stored[constants.KeyObjectID].(string)
}

// Get returns a copy of the stored record, including hidden fields.
func (s *Store) Get(className, objectID string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lookup(className, objectID)
	if !ok {
		return nil, false
	}
	return copyRecord(rec), true
}

// Count returns the number of records in className.
func (s *Store) Count(className string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.classes[className]
	if !ok {
		return 0
	}
	return len(c.records)
}

// RelationTargets returns the targets of the relation field key of a record.
func (s *Store) RelationTargets(className, objectID, key string) []models.Pointer {
	s.mu.Lock()
	defer s.mu.Unlock()

	targets := s.relations[relationKey(className, objectID, key)]
	out := make([]models.Pointer, len(targets))
	copy(out, targets)
	return out
}

func relationKey(className, objectID, key string) string {
	return className + "/" + objectID + "/" + key
}

func copyRecord(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func (s *Store) handle(req *connection.Request) (any, int, error) {
	switch req.Intent {
	case connection.IntentCreate:
		if req.ClassName == constants.ClassUser {
			return s.signUp(req)
		}
		return s.create(req)
	case connection.IntentUpdate:
		return s.update(req)
	case connection.IntentDelete:
		return s.delete(req)
	case connection.IntentGet:
		return s.get(req)
	case connection.IntentQuery:
		return s.query(req)
	case connection.IntentBatch:
		return s.batch(req)
	case connection.IntentSearch:
		return s.search(req)
	case connection.IntentInbox:
		return s.inbox(req)
	case connection.IntentSignUp:
		return s.signUp(req)
	case connection.IntentLogIn:
		return s.logIn(req)
	case connection.IntentBecome:
		return s.become(req)
	case connection.IntentUpdatePassword:
		return s.updatePassword(req)
	case connection.IntentRequestPasswordReset, connection.IntentRequestEmailVerify:
		return s.requestEmail(req)
	case connection.IntentServerDate:
		return models.NewDate(s.now()).Encode(), http.StatusOK, nil
	}
	return nil, 0, connection.Wrap(constants.CommandUnavailable, fmt.Errorf("%w: %q", constants.ErrUnknownIntent, req.Intent))
}

func checkClassName(name string) error {
	if !classNamePattern.MatchString(name) {
		return connection.Errorf(constants.InvalidClassName, "invalid class name %q", name)
	}
	return nil
}

func normalizeBody(body map[string]any) (map[string]any, error) {
	if body == nil {
		return map[string]any{}, nil
	}
	normalized, err := models.Normalize(body)
	if err != nil {
		return nil, connection.Wrap(constants.InvalidJSON, err)
	}
	m, ok := normalized.(map[string]any)
	if !ok {
		return nil, connection.Errorf(constants.InvalidJSON, "body is not an object")
	}
	return m, nil
}

func (s *Store) create(req *connection.Request) (any, int, error) {
	if err := checkClassName(req.ClassName); err != nil {
		return nil, 0, err
	}
	body, err := normalizeBody(req.Body)
	if err != nil {
		return nil, 0, err
	}
	if req.ClassName == constants.ClassRole {
		if err := s.checkRoleName(body); err != nil {
			return nil, 0, err
		}
	}

	id := rand.NewObjectID()
	rec := map[string]any{}
	edges, err := s.applyBody(req.ClassName, id, rec, body)
	if err != nil {
		return nil, 0, err
	}
	ts := s.timestamp()
	rec[constants.KeyObjectID] = id
	rec[constants.KeyCreatedAt] = ts
	rec[constants.KeyUpdatedAt] = ts
	s.insert(req.ClassName, rec)
	s.commitEdges(edges)

	if fetchWhenSave(req) {
		return s.output(req.ClassName, rec, nil, nil), http.StatusCreated, nil
	}
	return map[string]any{
		constants.KeyObjectID:  id,
		constants.KeyCreatedAt: ts,
	}, http.StatusCreated, nil
}

func (s *Store) checkRoleName(body map[string]any) error {
	name, _ := body["name"].(string)
	if name == "" {
		return connection.NewError(constants.InvalidRoleName, "role name is required")
	}
	for _, rec := range s.class(constants.ClassRole).all() {
		if rec["name"] == name {
			return connection.Errorf(constants.DuplicateValue, "role %q already exists", name)
		}
	}
	return nil
}

func (s *Store) update(req *connection.Request) (any, int, error) {
	rec, ok := s.lookup(req.ClassName, req.ObjectID)
	if !ok {
		return nil, 0, notFound(req.ClassName, req.ObjectID)
	}
	if err := s.checkUserWrite(req); err != nil {
		return nil, 0, err
	}
	if err := s.checkCondition(req, rec); err != nil {
		return nil, 0, err
	}
	body, err := normalizeBody(req.Body)
	if err != nil {
		return nil, 0, err
	}
	if req.ClassName == constants.ClassRole {
		if name, ok := body["name"]; ok && name != rec["name"] {
			return nil, 0, connection.NewError(constants.InvalidRoleName, "a role's name can only be set before it has been saved")
		}
	}

	next := copyRecord(rec)
	edges, err := s.applyBody(req.ClassName, req.ObjectID, next, body)
	if err != nil {
		return nil, 0, err
	}
	next[constants.KeyUpdatedAt] = s.timestamp()
	s.insert(req.ClassName, next)
	s.commitEdges(edges)

	if fetchWhenSave(req) {
		return s.output(req.ClassName, next, nil, nil), http.StatusOK, nil
	}
	return map[string]any{
		constants.KeyObjectID:  req.ObjectID,
		constants.KeyUpdatedAt: next[constants.KeyUpdatedAt],
	}, http.StatusOK, nil
}

func (s *Store) delete(req *connection.Request) (any, int, error) {
	rec, ok := s.lookup(req.ClassName, req.ObjectID)
	if !ok {
		return map[string]any{}, http.StatusOK, nil
	}
	if err := s.checkUserWrite(req); err != nil {
		return nil, 0, err
	}
	if err := s.checkCondition(req, rec); err != nil {
		return nil, 0, err
	}

	delete(s.classes[req.ClassName].records, req.ObjectID)
	prefix := relationKey(req.ClassName, req.ObjectID, "")
	for k := range s.relations {
		if strings.HasPrefix(k, prefix) {
			delete(s.relations, k)
		}
	}
	if req.ClassName == constants.ClassUser {
		for token, sess := range s.sessions {
			if sess.UserID == req.ObjectID {
				delete(s.sessions, token)
			}
		}
	}
	return map[string]any{}, http.StatusOK, nil
}

func (s *Store) get(req *connection.Request) (any, int, error) {
	rec, ok := s.lookup(req.ClassName, req.ObjectID)
	if !ok {
		return nil, 0, notFound(req.ClassName, req.ObjectID)
	}
	return s.output(req.ClassName, rec, listParam(req.Params, "keys"), listParam(req.Params, "include")), http.StatusOK, nil
}

func (s *Store) batch(req *connection.Request) (any, int, error) {
	if len(req.Requests) > constants.MaxBatchSize {
		return nil, 0, connection.Errorf(constants.InvalidQuery, "too many requests in batch: %d", len(req.Requests))
	}
	out := make([]any, 0, len(req.Requests))
	for _, sub := range req.Requests {
		if sub.Intent == connection.IntentBatch {
			return nil, 0, connection.NewError(constants.InvalidQuery, "nested batch")
		}
		body, _, err := s.handle(sub)
		if err != nil {
			e := connection.AsError(err)
			out = append(out, map[string]any{"error": map[string]any{"code": int(e.Code), "error": e.Message}})
			continue
		}
		out = append(out, map[string]any{"success": body})
	}
	return out, http.StatusOK, nil
}

func notFound(className, objectID string) *connection.Error {
	return &connection.Error{
		Code:       constants.ObjectNotFound,
		Message:    fmt.Sprintf("object %s/%s not found", className, objectID),
		StatusCode: http.StatusNotFound,
	}
}

func fetchWhenSave(req *connection.Request) bool {
	switch v := req.Params["fetchWhenSave"].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// checkCondition enforces the "where" parameter of conditional writes.
func (s *Store) checkCondition(req *connection.Request, rec map[string]any) error {
	where, err := whereParam(req.Params)
	if err != nil || where == nil {
		return err
	}
	ok, err := s.matches(req.ClassName, rec, where)
	if err != nil {
		return err
	}
	if !ok {
		return connection.NewError(constants.ConditionNotMet, "No effect on updating/deleting a document.")
	}
	return nil
}

// checkUserWrite requires writes to a user to come from that user's session or the master key.
func (s *Store) checkUserWrite(req *connection.Request) error {
	if req.ClassName != constants.ClassUser || req.Options.UseMasterKey {
		return nil
	}
	sess, ok := s.sessions[req.Options.SessionToken]
	if !ok || sess.UserID != req.ObjectID {
		return connection.NewError(constants.SessionMissing, "cannot modify user without its session")
	}
	return nil
}

type edgeUpdate struct {
	key     string
	added   []models.Pointer
	removed []models.Pointer
}

// applyBody applies the encoded operations of body to rec. Relation edges are
// returned rather than written so that a failed write leaves no trace.
func (s *Store) applyBody(className, objectID string, rec, body map[string]any) ([]edgeUpdate, error) {
	var edges []edgeUpdate
	for key, raw := range body {
		switch key {
		case constants.KeyObjectID, constants.KeyCreatedAt, constants.KeyUpdatedAt:
			continue
		}
		if strings.HasPrefix(key, "$") || key == "" {
			return nil, connection.Errorf(constants.InvalidKeyName, "invalid key name %q", key)
		}

		o, err := op.Decode(raw, nil)
		if err != nil {
			return nil, connection.Wrap(constants.InvalidJSON, err)
		}
		if rel, ok := o.(op.Relation); ok {
			e, target, err := relationEdges(key, rel)
			if err != nil {
				return nil, err
			}
			if cur, ok := rec[key].(map[string]any); ok && models.TypeOf(cur) == models.TypeRelation {
				if c, _ := cur["className"].(string); c != "" && target != "" && c != target {
					return nil, connection.Errorf(constants.IncorrectType, "relation %s holds %s, not %s", key, c, target)
				}
				if target == "" {
					target, _ = cur["className"].(string)
				}
			}
			rec[key] = map[string]any{"__type": models.TypeRelation, "className": target}
			e.key = relationKey(className, objectID, key)
			edges = append(edges, e)
			continue
		}

		v, err := o.Apply(rec[key])
		if err != nil {
			return nil, connection.Errorf(constants.IncorrectType, "%s: %v", key, err)
		}
		if op.IsUnset(o) {
			delete(rec, key)
			continue
		}
		rec[key] = v
	}
	return edges, nil
}

func relationEdges(key string, rel op.Relation) (edgeUpdate, string, error) {
	var e edgeUpdate
	target := ""
	collect := func(items []any) ([]models.Pointer, error) {
		out := make([]models.Pointer, 0, len(items))
		for _, item := range items {
			p, ok := pointerOf(item)
			if !ok {
				return nil, connection.Errorf(constants.InvalidPointer, "relation %s: invalid target %v", key, item)
			}
			if target == "" {
				target = p.ClassName
			} else if p.ClassName != target {
				return nil, connection.Errorf(constants.IncorrectType, "relation %s mixes %s and %s", key, target, p.ClassName)
			}
			out = append(out, p)
		}
		return out, nil
	}
	var err error
	if e.added, err = collect(rel.Added()); err != nil {
		return e, "", err
	}
	if e.removed, err = collect(rel.Removed()); err != nil {
		return e, "", err
	}
	return e, target, nil
}

func (s *Store) commitEdges(edges []edgeUpdate) {
	for _, e := range edges {
		cur := s.relations[e.key]
		next := make([]models.Pointer, 0, len(cur)+len(e.added))
		for _, p := range cur {
			if !containsPointer(e.removed, p) {
				next = append(next, p)
			}
		}
		for _, p := range e.added {
			if !containsPointer(next, p) {
				next = append(next, p)
			}
		}
		s.relations[e.key] = next
	}
}

func containsPointer(ps []models.Pointer, p models.Pointer) bool {
	for _, q := range ps {
		if q == p {
			return true
		}
	}
	return false
}

// pointerOf reads a Pointer or Object wire value, or a models.Pointer.
func pointerOf(v any) (models.Pointer, bool) {
	switch p := v.(type) {
	case models.Pointer:
		return p, p.ClassName != "" && p.ObjectID != ""
	case map[string]any:
		t := models.TypeOf(p)
		if t != models.TypePointer && t != models.TypeObject {
			return models.Pointer{}, false
		}
		className, _ := p["className"].(string)
		objectID, _ := p[constants.KeyObjectID].(string)
		if className == "" || objectID == "" {
			return models.Pointer{}, false
		}
		return models.NewPointer(className, objectID), true
	}
	return models.Pointer{}, false
}

// output renders rec for a reply: hidden fields are dropped, keys projects and
// include expands pointers into objects.
func (s *Store) output(className string, rec map[string]any, keys, include []string) map[string]any {
	out := copyRecord(rec)
	for _, h := range hiddenFields {
		delete(out, h)
	}
	if len(keys) > 0 {
		projected := map[string]any{}
		for _, k := range []string{constants.KeyObjectID, constants.KeyCreatedAt, constants.KeyUpdatedAt} {
			if v, ok := out[k]; ok {
				projected[k] = v
			}
		}
		for _, k := range keys {
			top := strings.SplitN(k, ".", 2)[0]
			if v, ok := out[top]; ok {
				projected[top] = v
			}
		}
		out = projected
	}

	nested := map[string][]string{}
	for _, path := range include {
		parts := strings.SplitN(path, ".", 2)
		if _, ok := nested[parts[0]]; !ok {
			nested[parts[0]] = nil
		}
		if len(parts) == 2 {
			nested[parts[0]] = append(nested[parts[0]], parts[1])
		}
	}
	for field, sub := range nested {
		v, ok := out[field]
		if !ok {
			continue
		}
		out[field] = s.expand(v, sub)
	}
	return out
}

func (s *Store) expand(v any, include []string) any {
	if arr, ok := v.([]any); ok {
		out := make([]any, len(arr))
		for i, item := range arr {
			out[i] = s.expand(item, include)
		}
		return out
	}
	p, ok := pointerOf(v)
	if !ok {
		return v
	}
	target, ok := s.lookup(p.ClassName, p.ObjectID)
	if !ok {
		return v
	}
	obj := s.output(p.ClassName, target, nil, include)
	obj["__type"] = models.TypeObject
	obj["className"] = p.ClassName
	return obj
}
