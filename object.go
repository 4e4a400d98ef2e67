package leanstore

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"

	"github.com/leanstore/leanstore.go/pkg/acl"
	"github.com/leanstore/leanstore.go/pkg/connection"
	"github.com/leanstore/leanstore.go/pkg/constants"
	"github.com/leanstore/leanstore.go/pkg/models"
	"github.com/leanstore/leanstore.go/pkg/op"
	"github.com/leanstore/leanstore.go/pkg/promise"
)

// Kind tags the capability variant of an object.
type Kind int

const (
	KindObject Kind = iota
	KindUser
	KindRole
	KindInstallation
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindRole:
		return "role"
	case KindInstallation:
		return "installation"
	default:
		return "object"
	}
}

// Object is a record of a store class.
//
// Mutators record field operations locally; nothing reaches the store until Save.
// Attributes always show the operations applied, so Get returns the value the
// field will have once the pending save succeeds.
//
// An Object is safe for concurrent use, but events fire on the goroutine that
// caused them: the caller of a mutator, or the client's Loop for replies.
type Object struct {
	client    *Client
	className string
	kind      Kind
	cid       string
	events    events

	mu        sync.Mutex
	id        string
	createdAt time.Time
	updatedAt time.Time
	// serverData is the last state confirmed by the store.
	serverData map[string]any
	// attributes is serverData with the in-flight and pending operations applied.
	attributes map[string]any
	// previous is attributes as of the last change event.
	previous map[string]any
	pending  map[string]op.Op
	inflight map[string]op.Op
	saving   *promise.Promise[*Object]

	acl        *acl.ACL
	aclVersion int
	aclSaved   int

	fetched       bool
	existed       bool
	destroyed     bool
	fetchWhenSave bool
	sessionToken  string
	highlight     map[string]any
}

var _ op.Identity = (*Object)(nil)

var reservedKeys = map[string]bool{
	constants.KeyObjectID:  true,
	constants.KeyCreatedAt: true,
	constants.KeyUpdatedAt: true,
}

var roleNamePattern = regexp.MustCompile(`^[0-9a-zA-Z\-_ ]+$`)

// Object creates a new, unsaved object of className.
func (c *Client) Object(className string) *Object {
	o := c.newObject(className)
	if init := c.registry.spec(className).Initialize; init != nil {
		init(o)
	}
	return o
}

// CreateWithoutData returns a reference to the stored object className/id whose
// data has not been fetched.
func (c *Client) CreateWithoutData(className, id string) *Object {
	o := c.Object(className)
	o.id = id
	return o
}

func (c *Client) newObject(className string) *Object {
	return &Object{
		client:     c,
		className:  className,
		kind:       kindOf(className),
		cid:        ulid.Make().String(),
		serverData: map[string]any{},
		attributes: map[string]any{},
		previous:   map[string]any{},
		pending:    map[string]op.Op{},
	}
}

func (o *Object) object() *Object { return o }

// Client returns the client o belongs to.
func (o *Object) Client() *Client { return o.client }

// ClassName returns the store class of o.
func (o *Object) ClassName() string { return o.className }

// Kind returns the capability variant of o.
func (o *Object) Kind() Kind { return o.kind }

// CID returns a client-local id, unique among the objects of this process.
func (o *Object) CID() string { return o.cid }

func (o *Object) ID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.id
}

func (o *Object) CreatedAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.createdAt
}

func (o *Object) UpdatedAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.updatedAt
}

// IsNew reports whether o has never been saved.
func (o *Object) IsNew() bool { return o.ID() == "" }

// Existed reports whether o was already stored before its last save or fetch,
// as opposed to created by it.
func (o *Object) Existed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.existed
}

// IsDestroyed reports whether o was destroyed.
func (o *Object) IsDestroyed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.destroyed
}

// IdentityKey identifies the stored object. Unsaved objects have none.
func (o *Object) IdentityKey() string {
	return o.ToPointer().IdentityKey()
}

// ToPointer returns a reference to o.
func (o *Object) ToPointer() models.Pointer {
	return models.NewPointer(o.className, o.ID())
}

// Get returns the value of key, including the server-assigned fields
// objectId, createdAt, updatedAt and ACL.
func (o *Object) Get(key string) any {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch key {
	case constants.KeyObjectID:
		return o.id
	case constants.KeyCreatedAt:
		return o.createdAt
	case constants.KeyUpdatedAt:
		return o.updatedAt
	case constants.KeyACL:
		if o.acl == nil {
			return nil
		}
		return o.acl.Clone()
	}
	return o.attributes[key]
}

// Has reports whether key holds a non-nil value.
func (o *Object) Has(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.attributes[key] != nil
}

// Attributes returns a copy of the attributes.
func (o *Object) Attributes() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneMap(o.attributes)
}

// Highlights returns the search highlights attached to o by a SearchQuery.
func (o *Object) Highlights() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneMap(o.highlight)
}

// SetOption adjusts a mutation.
type SetOption func(*setConfig)

type setConfig struct {
	silent bool
}

// Silent suppresses the change events of a mutation.
func Silent() SetOption {
	return func(c *setConfig) { c.silent = true }
}

func newSetConfig(opts []SetOption) setConfig {
	var cfg setConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Set queues a Set of key to v.
func (o *Object) Set(key string, v any, opts ...SetOption) error {
	return o.SetAll(map[string]any{key: v}, opts...)
}

// SetAll queues a Set for every entry of attrs. Either every entry is accepted
// or none is.
func (o *Object) SetAll(attrs map[string]any, opts ...SetOption) error {
	cfg := newSetConfig(opts)
	values := make(map[string]any, len(attrs))
	var (
		newACL *acl.ACL
		hasACL bool
	)
	for key, v := range attrs {
		if key == constants.KeyACL {
			a, ok := v.(*acl.ACL)
			if !ok && v != nil {
				return connection.Errorf(constants.InvalidACL, "ACL must be an *acl.ACL, got %T", v)
			}
			newACL, hasACL = a, true
			continue
		}
		if err := o.checkKey(key); err != nil {
			return err
		}
		if err := o.checkCapability(key, v); err != nil {
			return err
		}
		values[key] = v
	}
	if err := o.validate(values); err != nil {
		return err
	}

	keys := sortedKeys(values)
	for _, key := range keys {
		if err := o.queue(key, op.NewSet(values[key])); err != nil {
			return err
		}
	}
	if hasACL {
		o.SetACL(newACL)
	}
	o.fireChanges(keys, cfg.silent)
	return nil
}

// Unset queues the removal of key.
func (o *Object) Unset(key string, opts ...SetOption) error {
	return o.apply(key, op.NewUnset(), opts)
}

// Increment queues an atomic increment of key by amount, which must be a number.
func (o *Object) Increment(key string, amount any, opts ...SetOption) error {
	inc, err := op.IncrementBy(amount)
	if err != nil {
		return connection.Wrap(constants.ValidationError, err)
	}
	return o.apply(key, inc, opts)
}

// Add queues appending items to the array key.
func (o *Object) Add(key string, items ...any) error {
	return o.apply(key, op.NewAdd(items...), nil)
}

// AddUnique queues appending the items not yet in the array key.
func (o *Object) AddUnique(key string, items ...any) error {
	return o.apply(key, op.NewAddUnique(items...), nil)
}

// Remove queues removing every occurrence of items from the array key.
func (o *Object) Remove(key string, items ...any) error {
	return o.apply(key, op.NewRemove(items...), nil)
}

func (o *Object) apply(key string, next op.Op, opts []SetOption) error {
	if err := o.checkKey(key); err != nil {
		return err
	}
	if err := o.queue(key, next); err != nil {
		return err
	}
	o.fireChanges([]string{key}, newSetConfig(opts).silent)
	return nil
}

// queue merges next into the pending operation of key and applies it to the
// attribute.
func (o *Object) queue(key string, next op.Op) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.destroyed {
		return connection.Errorf(constants.ValidationError, "%s/%s was destroyed", o.className, o.id)
	}

	merged, err := op.Merge(o.pending[key], next)
	if err != nil {
		return connection.Wrap(constants.ValidationError, err)
	}
	value, err := next.Apply(o.attributes[key])
	if err != nil {
		return connection.Wrap(constants.ValidationError, err)
	}
	o.pending[key] = merged
	o.setAttribute(key, next, value)
	return nil
}

// setAttribute stores the result of applying o to the attribute key. Must hold o.mu.
func (o *Object) setAttribute(key string, applied op.Op, value any) {
	switch r := applied.(type) {
	case op.Unset:
		delete(o.attributes, key)
		return
	case op.Relation:
		if value == nil {
			value = &Relation{parent: o, key: key, targetClass: r.TargetClass()}
		}
	}
	o.attributes[key] = value
}

func (o *Object) checkKey(key string) error {
	switch {
	case key == "":
		return connection.NewError(constants.InvalidKeyName, "empty key")
	case reservedKeys[key]:
		return connection.Errorf(constants.InvalidKeyName, "%s is assigned by the store", key)
	case strings.HasPrefix(key, "$"), strings.HasPrefix(key, "__"):
		return connection.Errorf(constants.InvalidKeyName, "invalid key name %q", key)
	}
	return nil
}

// checkCapability enforces the rules of the built-in classes.
func (o *Object) checkCapability(key string, v any) error {
	if o.kind != KindRole || key != "name" {
		return nil
	}
	name, ok := v.(string)
	if !ok {
		return connection.Errorf(constants.InvalidRoleName, "role name must be a string, got %T", v)
	}
	if !o.IsNew() {
		return connection.NewError(constants.InvalidRoleName, "a role's name can only be set before it has been saved")
	}
	if !roleNamePattern.MatchString(name) {
		return connection.Errorf(constants.InvalidRoleName,
			"role name %q may only contain alphanumeric characters, '_', '-' and spaces", name)
	}
	return nil
}

func (o *Object) validate(attrs map[string]any) error {
	v := o.client.registry.spec(o.className).Validate
	if v == nil {
		return nil
	}
	if err := v(o, attrs); err != nil {
		if _, ok := err.(*connection.Error); ok {
			return err
		}
		return connection.Wrap(constants.ValidationError, err)
	}
	return nil
}

// fireChanges fires change:<key> for each key and then change, unless silent.
func (o *Object) fireChanges(keys []string, silent bool) {
	if silent || len(keys) == 0 {
		return
	}
	for _, key := range keys {
		o.Trigger(ChangeEvent(key), o.Get(key))
	}
	o.Trigger(EventChange)

	o.mu.Lock()
	o.previous = cloneMap(o.attributes)
	o.mu.Unlock()
}

// Previous returns the value key had before the change being fired.
func (o *Object) Previous(key string) any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.previous[key]
}

// PreviousAttributes returns the attributes as of before the change being fired.
func (o *Object) PreviousAttributes() map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	return cloneMap(o.previous)
}

// ChangedAttributes returns the attributes that differ from diff, or the dirty
// attributes when diff is nil. It returns nil when nothing differs.
func (o *Object) ChangedAttributes(diff map[string]any) map[string]any {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := map[string]any{}
	if diff == nil {
		for key := range o.pending {
			out[key] = o.attributes[key]
		}
	} else {
		for key, v := range diff {
			if !op.Equal(o.attributes[key], v) {
				out[key] = v
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Dirty reports whether any of keys has a pending operation. Without keys it
// reports whether o has anything to save.
func (o *Object) Dirty(keys ...string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(keys) == 0 {
		return o.id == "" || len(o.pending) > 0 || o.aclVersion != o.aclSaved
	}
	for _, key := range keys {
		if _, ok := o.pending[key]; ok {
			return true
		}
	}
	return false
}

// DirtyKeys returns the keys with a pending operation, sorted.
func (o *Object) DirtyKeys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.pending))
	for key := range o.pending {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Op returns the pending operation of key, or nil.
func (o *Object) Op(key string) op.Op {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending[key]
}

// Clear queues the removal of every attribute.
func (o *Object) Clear(opts ...SetOption) error {
	o.mu.Lock()
	keys := sortedKeys(o.attributes)
	o.mu.Unlock()
	for _, key := range keys {
		if err := o.queue(key, op.NewUnset()); err != nil {
			return err
		}
	}
	o.fireChanges(keys, newSetConfig(opts).silent)
	return nil
}

// Clone returns a new unsaved object of the same class with the same attributes.
func (o *Object) Clone() *Object {
	clone := o.client.Object(o.className)
	for key, v := range o.Attributes() {
		if _, ok := v.(*Relation); ok {
			continue
		}
		clone.queue(key, op.NewSet(v)) //nolint:errcheck // a Set on a fresh object cannot fail
	}
	if a := o.GetACL(); a != nil {
		clone.SetACL(a)
	}
	return clone
}

// Revert drops the pending operations of keys, or of every key, restoring the
// attributes to the last known server state.
func (o *Object) Revert(keys ...string) {
	o.mu.Lock()
	if len(keys) == 0 {
		keys = sortedKeys(o.pending)
	}
	var changed []string
	for _, key := range keys {
		if _, ok := o.pending[key]; !ok {
			continue
		}
		delete(o.pending, key)
		before := o.attributes[key]
		o.recompute(key)
		if !op.Equal(before, o.attributes[key]) {
			changed = append(changed, key)
		}
	}
	o.mu.Unlock()
	o.fireChanges(changed, false)
}

// recompute rebuilds the attribute key from the server data and the queued
// operations. Must hold o.mu.
func (o *Object) recompute(key string) {
	value, present := o.serverData[key]
	for _, ops := range []map[string]op.Op{o.inflight, o.pending} {
		next, ok := ops[key]
		if !ok {
			continue
		}
		applied, err := next.Apply(value)
		if err != nil {
			continue
		}
		value, present = applied, !op.IsUnset(next)
		if r, ok := next.(op.Relation); ok && value == nil {
			value = &Relation{parent: o, key: key, targetClass: r.TargetClass()}
		}
	}
	if present {
		o.attributes[key] = value
	} else {
		delete(o.attributes, key)
	}
}

// GetACL returns a copy of the ACL of o, or nil when none was set.
func (o *Object) GetACL() *acl.ACL {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.acl.Clone()
}

// SetACL attaches a copy of a to o. Later changes to a need another SetACL.
func (o *Object) SetACL(a *acl.ACL) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.acl = a.Clone()
	o.aclVersion++
}

// FetchWhenSave makes every save of o return and apply the full stored record.
func (o *Object) FetchWhenSave(enable bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fetchWhenSave = enable
}

// ToJSON returns the attributes in their wire form together with the
// server-assigned fields.
func (o *Object) ToJSON() (map[string]any, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]any, len(o.attributes)+4)
	for key, v := range o.attributes {
		enc, err := jsonValue(v)
		if err != nil {
			return nil, err
		}
		out[key] = enc
	}
	if o.id != "" {
		out[constants.KeyObjectID] = o.id
	}
	if !o.createdAt.IsZero() {
		out[constants.KeyCreatedAt] = models.NewDate(o.createdAt).String()
	}
	if !o.updatedAt.IsZero() {
		out[constants.KeyUpdatedAt] = models.NewDate(o.updatedAt).String()
	}
	if o.acl != nil {
		out[constants.KeyACL] = o.acl.Encode()
	}
	return out, nil
}

// jsonValue is encodeValue except that unsaved objects are inlined.
func jsonValue(v any) (any, error) {
	if obj, ok := v.(*Object); ok && obj != nil && obj.ID() == "" {
		return obj.ToJSON()
	}
	return encodeValue(v)
}

func (o *Object) MarshalJSON() ([]byte, error) {
	m, err := o.ToJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func (o *Object) isFetched() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fetched
}

func (o *Object) markFetched() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fetched = true
	o.existed = true
}

// mergeServer overlays a reply onto the server data and returns the attribute
// keys whose value changed.
func (o *Object) mergeServer(data map[string]any) ([]string, error) {
	// Values are decoded before locking: decoding may reach o itself.
	decoded := make(map[string]any, len(data))
	var (
		id                   string
		createdAt, updatedAt time.Time
		a                    *acl.ACL
		hasACL               bool
		token                string
	)
	for key, v := range data {
		var err error
		switch key {
		case constants.KeyObjectID:
			id, _ = v.(string)
		case constants.KeyCreatedAt:
			createdAt, err = parseTime(v)
		case constants.KeyUpdatedAt:
			updatedAt, err = parseTime(v)
		case constants.KeyACL:
			a, err = acl.Decode(v)
			hasACL = true
		case "sessionToken":
			if o.kind == KindUser {
				token, _ = v.(string)
				continue
			}
			decoded[key], err = o.client.decodeValue(v, o, key)
		case "__type", "className":
		default:
			decoded[key], err = o.client.decodeValue(v, o, key)
		}
		if err != nil {
			return nil, connection.Wrap(constants.InvalidJSON, err)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if id != "" {
		o.id = id
	}
	if !createdAt.IsZero() {
		o.createdAt = createdAt
		if updatedAt.IsZero() {
			o.updatedAt = createdAt
		}
	}
	if !updatedAt.IsZero() {
		o.updatedAt = updatedAt
	}
	if hasACL && o.aclVersion == o.aclSaved {
		o.acl = a
	}
	if token != "" {
		o.sessionToken = token
	}

	var changed []string
	for key, v := range decoded {
		if r, ok := v.(*Relation); ok {
			if cur, ok := o.serverData[key].(*Relation); ok && cur.TargetClass() == r.TargetClass() {
				v = cur
			}
		}
		before, had := o.attributes[key]
		o.serverData[key] = v
		o.recompute(key)
		after, has := o.attributes[key]
		if had != has || !op.Equal(before, after) {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

// dropServerKeys removes the server data absent from a full reply.
func (o *Object) dropServerKeys(data map[string]any) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var changed []string
	for key := range o.serverData {
		if _, ok := data[key]; ok {
			continue
		}
		delete(o.serverData, key)
		_, had := o.attributes[key]
		o.recompute(key)
		if _, has := o.attributes[key]; had != has {
			changed = append(changed, key)
		}
	}
	return changed
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
